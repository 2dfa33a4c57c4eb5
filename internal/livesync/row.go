package livesync

import (
	"context"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// Row 단일 행 동기화. INSERT/UPDATE는 이벤트 행으로 교체, DELETE는 nil.
type Row[T model.Row] struct {
	c *core[*T]
}

// NewRow table은 T의 테이블이어야 하고 column은 필터 가능한 컬럼이어야 한다
func NewRow[T model.Row](src Source, table model.Table, column string, opts ...Option) (*Row[T], error) {
	if err := checkTarget[T](table, column); err != nil {
		return nil, err
	}
	r := &Row[T]{}
	r.c = &core[*T]{
		src:    src,
		table:  table,
		column: column,
		opts:   buildOptions(opts),
	}
	r.c.fetch = r.fetch
	r.c.onEvent = r.onEvent
	return r, nil
}

func checkTarget[T model.Row](table model.Table, column string) error {
	if want := model.TableOf[T](); want != table {
		return apperr.Invalid("row type belongs to %s, not %s", want, table)
	}
	if !table.Subscribable() {
		return apperr.Forbidden("table %s is not subscribable", table)
	}
	return table.ValidateFilter(column)
}

func (r *Row[T]) fetch(ctx context.Context, value string) (*T, error) {
	raw, err := r.c.src.FetchOne(ctx, r.c.table, r.c.column, value)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		r.c.opts.log.Warn("row not found", "table", r.c.table, "column", r.c.column, "value", value)
		return nil, nil
	}
	row, err := model.DecodeAs[T](raw)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Row[T]) onEvent(gen uint64, ev realtime.ChangeEvent) {
	switch ev.Type {
	case realtime.Delete:
		r.c.update(gen, func(s *State[*T]) {
			s.Data = nil
			s.Err = nil
		})
	case realtime.Insert, realtime.Update:
		row, err := realtime.DecodeNew[T](ev)
		r.c.update(gen, func(s *State[*T]) {
			if err != nil {
				s.Err = err
				return
			}
			s.Data = &row
			s.Err = nil
		})
	}
}

// SetValue 필터 값 변경 (이전 구독 해제). 빈 값이면 네트워크 호출 없이 비운다.
func (r *Row[T]) SetValue(ctx context.Context, value string) error {
	return r.c.setValue(ctx, value)
}

// Value 현재 필터 값
func (r *Row[T]) Value() string { return r.c.currentValue() }

// Snapshot 현재 상태
func (r *Row[T]) Snapshot() State[*T] { return r.c.snapshot() }

// Close 구독 해제. 이후 도착하는 조회 결과는 무시된다.
func (r *Row[T]) Close() error { return r.c.close() }
