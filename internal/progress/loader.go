package progress

import (
	"context"

	"golang.org/x/sync/errgroup"

	"classroom-backend/internal/controls"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
)

// Source 그리드에 필요한 행 조회
type Source interface {
	GetSession(ctx context.Context, id string) (*model.PresentationSession, error)
	ListParticipants(ctx context.Context, sessionID string) ([]model.SessionParticipant, error)
	ListSlides(ctx context.Context, lessonID string) ([]model.Slide, error)
	ListAnswers(ctx context.Context, sessionID string) ([]model.StudentAnswer, error)
}

// Presence 접속 중인 참가자 (없으면 모두 offline)
type Presence interface {
	Online(ctx context.Context, sessionID string, userIDs []string) (map[string]bool, error)
}

// Loader 세션 행을 모아 그리드 생성
type Loader struct {
	src      Source
	presence Presence
	log      *logger.Logger
}

func NewLoader(src Source, presence Presence, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{src: src, presence: presence, log: log.With("component", "progress")}
}

// Load 참가자, 슬라이드, 응답을 동시에 조회한다. 익명 여부는 세션 행을 따른다.
func (l *Loader) Load(ctx context.Context, sessionID string, sortBy controls.SortKey) (Grid, error) {
	session, err := l.src.GetSession(ctx, sessionID)
	if err != nil {
		return Grid{}, err
	}

	var (
		students []model.SessionParticipant
		slides   []model.Slide
		answers  []model.StudentAnswer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = l.src.ListParticipants(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		slides, err = l.src.ListSlides(gctx, session.PresentationID)
		return err
	})
	g.Go(func() error {
		var err error
		answers, err = l.src.ListAnswers(gctx, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		l.log.Error("load progress rows failed", "session_id", sessionID, "error", err)
		return Grid{}, err
	}

	online := map[string]bool{}
	if l.presence != nil && len(students) > 0 {
		ids := make([]string, len(students))
		for i, s := range students {
			ids[i] = s.UserID
		}
		if online, err = l.presence.Online(ctx, sessionID, ids); err != nil {
			// 접속 표시만 빠지고 그리드는 그대로 보여준다
			l.log.Warn("presence lookup failed", "session_id", sessionID, "error", err)
			online = map[string]bool{}
		}
	}

	return BuildGrid(Input{
		Session:   session,
		Students:  students,
		Slides:    slides,
		Answers:   answers,
		Online:    online,
		Anonymize: session.AnonymousMode,
		SortBy:    sortBy,
	}), nil
}
