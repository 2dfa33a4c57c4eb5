package realtime

import (
	"fmt"
	"strconv"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// Filter (table, column = value) 동등 필터
type Filter struct {
	Table  model.Table `json:"table"`
	Column string      `json:"column"`
	Value  string      `json:"value"`
}

func (f Filter) String() string {
	return fmt.Sprintf("%s:%s=%s", f.Table, f.Column, f.Value)
}

// Validate 구독 가능한 테이블과 필터 컬럼인지 확인
func (f Filter) Validate() error {
	if _, err := model.ParseTable(string(f.Table)); err != nil {
		return err
	}
	if !f.Table.Subscribable() {
		return apperr.Forbidden("table %s is not subscribable", f.Table)
	}
	if err := f.Table.ValidateFilter(f.Column); err != nil {
		return err
	}
	if f.Value == "" {
		return apperr.Invalid("filter value is required")
	}
	return nil
}

// Matches 이벤트가 필터에 해당하는지
func (f Filter) Matches(e ChangeEvent) bool {
	if e.Table != f.Table {
		return false
	}
	row := e.Row()
	if row == nil {
		return false
	}
	v, ok := row[f.Column]
	if !ok {
		return false
	}
	return Stringify(v) == f.Value
}

// Stringify JSON 스칼라를 필터 비교용 문자열로
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
