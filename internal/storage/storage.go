// Package storage wraps the object stores that hold slide images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"classroom-backend/internal/config"
)

// ErrNotConfigured 스토리지 설정 없음
var ErrNotConfigured = errors.New("object storage is not configured")

// PresignedUpload 클라이언트가 직접 업로드할 URL
type PresignedUpload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Key     string            `json:"key"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Provider S3 / MinIO 공통 인터페이스
type Provider interface {
	PresignUpload(ctx context.Context, key, contentType string) (*PresignedUpload, error)
	// ObjectURL 읽기용 URL (서명된 임시 URL)
	ObjectURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// New 설정된 프로바이더 생성. 프로바이더가 비어 있으면 (nil, nil).
func New(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "s3":
		svc, err := NewS3Service(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case "minio":
		svc, err := NewMinioService(cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}
	return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
}

var imageExts = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// ImageKey lessons/<lessonID>/<uuid><ext>. 확장자는 파일명에서, 없으면 content type에서.
func ImageKey(lessonID, fileName, contentType string) (string, error) {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = imageExts[contentType]
	}
	if !IsImageType(contentType) {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	return fmt.Sprintf("lessons/%s/%s%s", lessonID, uuid.NewString(), ext), nil
}

// IsImageType 업로드 허용 타입
func IsImageType(contentType string) bool {
	_, ok := imageExts[contentType]
	return ok
}

// LessonOf 키가 속한 레슨 (레슨 이미지 키가 아니면 "")
func LessonOf(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "lessons" || parts[1] == "" || parts[2] == "" {
		return ""
	}
	return parts[1]
}
