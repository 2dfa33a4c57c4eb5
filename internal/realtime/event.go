package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"classroom-backend/internal/model"
)

// ChangeType 행 변경 종류
type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

// ChangeEvent 커밋된 행 변경 하나
type ChangeEvent struct {
	Table    model.Table    `json:"table"`
	Type     ChangeType     `json:"type"`
	New      map[string]any `json:"new,omitempty"`
	Old      map[string]any `json:"old,omitempty"`
	CommitAt time.Time      `json:"commit_at"`
}

// NewEvent 행 값을 JSON 객체로 변환해 이벤트 생성 (nil 행은 생략)
func NewEvent(table model.Table, typ ChangeType, newRow, oldRow any) (ChangeEvent, error) {
	ev := ChangeEvent{Table: table, Type: typ, CommitAt: time.Now().UTC()}
	var err error
	if ev.New, err = toObject(newRow); err != nil {
		return ChangeEvent{}, fmt.Errorf("encode new row: %w", err)
	}
	if ev.Old, err = toObject(oldRow); err != nil {
		return ChangeEvent{}, fmt.Errorf("encode old row: %w", err)
	}
	return ev, nil
}

func toObject(row any) (map[string]any, error) {
	if row == nil {
		return nil, nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Row 필터 매칭에 쓰는 행 (DELETE는 이전 행)
func (e ChangeEvent) Row() map[string]any {
	if e.Type == Delete {
		return e.Old
	}
	return e.New
}

// DecodeNew 이벤트의 새 행을 T로 디코딩
func DecodeNew[T model.Row](e ChangeEvent) (T, error) {
	var zero T
	if e.New == nil {
		return zero, fmt.Errorf("%s %s event has no new row", e.Table, e.Type)
	}
	raw, err := json.Marshal(e.New)
	if err != nil {
		return zero, err
	}
	return model.DecodeAs[T](raw)
}
