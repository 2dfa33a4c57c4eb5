package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// ErrSessionEnded 종료된 세션에 대한 변경 시도
var ErrSessionEnded = apperr.New(apperr.KindConflict, "session has ended", nil)

// Store 테이블 접근 계층. 쓰기는 커밋 후 변경 이벤트를 발행한다.
type Store struct {
	db  *gorm.DB
	pub realtime.Publisher
	log *logger.Logger
}

// New Store 생성
func New(db *gorm.DB, pub realtime.Publisher, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, pub: pub, log: log.With("component", "store")}
}

// DB 하위 gorm 핸들
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) publish(ctx context.Context, table model.Table, typ realtime.ChangeType, newRow, oldRow any) {
	if s.pub == nil {
		return
	}
	ev, err := realtime.NewEvent(table, typ, newRow, oldRow)
	if err != nil {
		s.log.Error("encode change event failed", "table", table, "type", typ, "error", err)
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		// 이미 커밋된 쓰기이므로 호출자에게 실패를 돌려주지 않는다
		s.log.Error("publish change event failed", "table", table, "type", typ, "error", err)
	}
}

// wrap gorm 에러를 분류 에러로 변환
func wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.New(apperr.KindNotFound, msg, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.New(apperr.KindConflict, msg, err)
	}
	return apperr.Backend(msg, err)
}

// Query 동등 필터 기반 행 조회
type Query struct {
	Table   model.Table
	Column  string
	Value   string
	OrderBy string
	Desc    bool
	Single  bool
}

// Validate 테이블/컬럼 허용 목록 검사
func (q Query) Validate() error {
	if _, err := model.ParseTable(string(q.Table)); err != nil {
		return err
	}
	if err := q.Table.ValidateFilter(q.Column); err != nil {
		return err
	}
	if q.Value == "" {
		return apperr.Invalid("filter value is required")
	}
	if q.OrderBy != "" && !q.Table.Orderable(q.OrderBy) {
		return apperr.Invalid("column %q is not orderable on %s", q.OrderBy, q.Table)
	}
	return nil
}

// Select 필터/정렬 조회. Single이면 최대 한 행 (없으면 빈 결과).
func (s *Store) Select(ctx context.Context, q Query) ([]model.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if isUUIDColumn(q.Column) {
		if _, err := uuid.Parse(q.Value); err != nil {
			return []model.Row{}, nil
		}
	}

	tx := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: q.Column}, Value: q.Value})
	if q.OrderBy != "" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Desc})
	}
	if q.Single {
		tx = tx.Limit(1)
	}

	var (
		rows []model.Row
		err  error
	)
	switch q.Table {
	case model.TablePresentations:
		rows, err = selectRows[model.Lesson](tx)
	case model.TableSlides:
		rows, err = selectRows[model.Slide](tx)
	case model.TablePresentationSessions:
		rows, err = selectRows[model.PresentationSession](tx)
	case model.TableSessionParticipants:
		rows, err = selectRows[model.SessionParticipant](tx)
	case model.TableStudentAnswers:
		rows, err = selectRows[model.StudentAnswer](tx)
	case model.TableUserSettings:
		rows, err = selectRows[model.UserSettings](tx)
	default:
		return nil, apperr.Forbidden("table %s cannot be selected", q.Table)
	}
	if err != nil {
		s.log.Error("select failed", "table", q.Table, "column", q.Column, "error", err)
		return nil, wrap("select "+q.Table.String(), err)
	}
	return rows, nil
}

func selectRows[T model.Row](tx *gorm.DB) ([]model.Row, error) {
	var found []T
	if err := tx.Find(&found).Error; err != nil {
		return nil, err
	}
	out := make([]model.Row, 0, len(found))
	for _, r := range found {
		out = append(out, r)
	}
	return out, nil
}

// checkID uuid가 아닌 식별자는 조회 전에 NotFound로 처리
func checkID(what, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return nil
}

func isUUIDColumn(col string) bool {
	return col == "id" || strings.HasSuffix(col, "_id")
}
