package store

import (
	"context"
	"strings"

	"classroom-backend/internal/model"
)

// CreateUser 사용자 생성 (이메일 중복은 Conflict)
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		s.log.Warn("create user failed", "email", u.Email, "error", err)
		return wrap("create user", err)
	}
	return nil
}

// GetUserByEmail 이메일로 조회
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).
		First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error; err != nil {
		return nil, wrap("user "+email, err)
	}
	return &u, nil
}

// GetUserByID ID로 조회
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if err := checkID("user", id); err != nil {
		return nil, err
	}
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, wrap("user "+id, err)
	}
	return &u, nil
}
