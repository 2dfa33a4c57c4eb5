package service

import (
	"context"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// AccessStore 권한 확인에 필요한 조회
type AccessStore interface {
	LessonOwner(ctx context.Context, lessonID string) (string, error)
	GetSession(ctx context.Context, id string) (*model.PresentationSession, error)
	GetParticipant(ctx context.Context, sessionID, userID string) (*model.SessionParticipant, error)
}

// AccessService 레슨 소유자/세션 호스트/참가자 확인
type AccessService struct {
	store AccessStore
}

// NewAccessService AccessService 생성
func NewAccessService(store AccessStore) *AccessService {
	return &AccessService{store: store}
}

// RequireLessonOwner 레슨 소유자가 아니면 Forbidden
func (s *AccessService) RequireLessonOwner(ctx context.Context, lessonID, userID string) error {
	owner, err := s.store.LessonOwner(ctx, lessonID)
	if err != nil {
		return err
	}
	if owner != userID {
		return apperr.Forbidden("only the lesson owner can do this")
	}
	return nil
}

// RequireSessionHost 세션 호스트 확인 후 세션 반환
func (s *AccessService) RequireSessionHost(ctx context.Context, sessionID, userID string) (*model.PresentationSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HostID != userID {
		return nil, apperr.Forbidden("only the session host can do this")
	}
	return session, nil
}

// RequireSessionMember 호스트 또는 참가자. isHost로 구분한다.
func (s *AccessService) RequireSessionMember(ctx context.Context, sessionID, userID string) (session *model.PresentationSession, isHost bool, err error) {
	session, err = s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if session.HostID == userID {
		return session, true, nil
	}
	if _, err := s.store.GetParticipant(ctx, sessionID, userID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, false, apperr.Forbidden("you have not joined this session")
		}
		return nil, false, err
	}
	return session, false, nil
}

// AuthorizeFilter 행 조회/구독 필터 권한. 응답과 참가자 행은 세션 단위로만 공개된다.
func (s *AccessService) AuthorizeFilter(ctx context.Context, userID string, table model.Table, column, value string) error {
	switch table {
	case model.TableUserSettings:
		if column != "user_id" || value != userID {
			return apperr.Forbidden("user_settings can only be read for the signed-in user")
		}
	case model.TableUsers:
		if column != "id" || value != userID {
			return apperr.Forbidden("users can only be read for the signed-in user")
		}
	case model.TableSessionParticipants:
		switch column {
		case "user_id":
			if value != userID {
				return apperr.Forbidden("participant rows of other users are private")
			}
		case "session_id":
			if _, _, err := s.RequireSessionMember(ctx, value, userID); err != nil {
				return err
			}
		default:
			return apperr.Forbidden("session_participants must be filtered by session_id or user_id")
		}
	case model.TableStudentAnswers:
		switch column {
		case "student_id":
			if value != userID {
				return apperr.Forbidden("answers of other students are private")
			}
		case "session_id":
			if _, err := s.RequireSessionHost(ctx, value, userID); err != nil {
				return err
			}
		case "presentation_id":
			if err := s.RequireLessonOwner(ctx, value, userID); err != nil {
				return err
			}
		default:
			return apperr.Forbidden("student_answers must be filtered by session_id, student_id or presentation_id")
		}
	}
	return nil
}
