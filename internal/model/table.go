package model

import (
	"bytes"
	"encoding/json"

	"classroom-backend/internal/apperr"
)

// Row 테이블 하나에 대응하는 행 타입
type Row interface {
	TableName() string
}

// Table 닫힌 테이블 열거형
type Table string

const (
	TablePresentations        Table = "presentations"
	TableSlides               Table = "slides"
	TablePresentationSessions Table = "presentation_sessions"
	TableSessionParticipants  Table = "session_participants"
	TableStudentAnswers       Table = "student_answers"
	TableUserSettings         Table = "user_settings"
	TableUsers                Table = "users"
)

func (t Table) String() string {
	return string(t)
}

type tableSpec struct {
	newRow     func() Row
	filterable []string
	orderable  []string
	subscribe  bool
}

var tables = map[Table]tableSpec{
	TablePresentations: {
		newRow:     func() Row { return &Lesson{} },
		filterable: []string{"id", "owner_id"},
		orderable:  []string{"created_at", "updated_at", "title"},
		subscribe:  true,
	},
	TableSlides: {
		newRow:     func() Row { return &Slide{} },
		filterable: []string{"id", "presentation_id"},
		orderable:  []string{"position", "created_at"},
		subscribe:  true,
	},
	TablePresentationSessions: {
		newRow:     func() Row { return &PresentationSession{} },
		filterable: []string{"id", "join_code", "presentation_id"},
		orderable:  []string{"started_at"},
		subscribe:  true,
	},
	TableSessionParticipants: {
		newRow:     func() Row { return &SessionParticipant{} },
		filterable: []string{"id", "session_id", "user_id"},
		orderable:  []string{"joined_at"},
		subscribe:  true,
	},
	TableStudentAnswers: {
		newRow:     func() Row { return &StudentAnswer{} },
		filterable: []string{"id", "session_id", "student_id", "presentation_id", "slide_id"},
		orderable:  []string{"created_at"},
		subscribe:  true,
	},
	TableUserSettings: {
		newRow:     func() Row { return &UserSettings{} },
		filterable: []string{"user_id"},
		orderable:  []string{"updated_at"},
		subscribe:  true,
	},
	TableUsers: {
		newRow:     func() Row { return &User{} },
		filterable: []string{"id", "email"},
	},
}

// Tables 구독 가능한 테이블 목록
func Tables() []Table {
	return []Table{
		TablePresentations,
		TableSlides,
		TablePresentationSessions,
		TableSessionParticipants,
		TableStudentAnswers,
		TableUserSettings,
	}
}

// ParseTable 문자열을 테이블로 변환 (알 수 없는 이름은 거부)
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if _, ok := tables[t]; !ok {
		return "", apperr.Invalid("unknown table %q", s)
	}
	return t, nil
}

// Subscribable 변경 구독 허용 여부 (users는 불가)
func (t Table) Subscribable() bool {
	return tables[t].subscribe
}

// Filterable 필터 컬럼 허용 여부
func (t Table) Filterable(column string) bool {
	return contains(tables[t].filterable, column)
}

// Orderable 정렬 컬럼 허용 여부
func (t Table) Orderable(column string) bool {
	return contains(tables[t].orderable, column)
}

// NewRow 테이블의 빈 행
func (t Table) NewRow() (Row, error) {
	spec, ok := tables[t]
	if !ok {
		return nil, apperr.Invalid("unknown table %q", t)
	}
	return spec.newRow(), nil
}

// ValidateFilter 구독/조회 필터 검증
func (t Table) ValidateFilter(column string) error {
	if _, ok := tables[t]; !ok {
		return apperr.Invalid("unknown table %q", t)
	}
	if !t.Filterable(column) {
		return apperr.Invalid("column %q is not filterable on %s", column, t)
	}
	return nil
}

// TableOf 행 타입 T의 테이블
func TableOf[T Row]() Table {
	var zero T
	return Table(zero.TableName())
}

// DecodeRow 테이블의 행 타입으로 디코딩 (모르는 필드는 에러)
func DecodeRow(t Table, data []byte) (Row, error) {
	row, err := t.NewRow()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(row); err != nil {
		return nil, apperr.Invalid("%s row: %v", t, err)
	}
	return row, nil
}

// DecodeAs DecodeRow의 제네릭 버전
func DecodeAs[T Row](data []byte) (T, error) {
	var out T
	t := TableOf[T]()
	if _, ok := tables[t]; !ok {
		return out, apperr.Invalid("unknown table %q", t)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, apperr.Invalid("%s row: %v", t, err)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
