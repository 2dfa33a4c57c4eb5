package livesync

import (
	"context"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// Collection 필터된 행 목록 동기화. 변경 이벤트마다 정렬 순서 유지를 위해 전체를 다시 조회한다.
type Collection[T model.Row] struct {
	c       *core[[]T]
	orderBy string
	desc    bool
}

// NewCollection orderBy가 비어 있으면 정렬하지 않는다
func NewCollection[T model.Row](src Source, table model.Table, column, orderBy string, desc bool, opts ...Option) (*Collection[T], error) {
	if err := checkTarget[T](table, column); err != nil {
		return nil, err
	}
	if orderBy != "" && !table.Orderable(orderBy) {
		return nil, apperr.Invalid("column %q is not orderable on %s", orderBy, table)
	}
	col := &Collection[T]{orderBy: orderBy, desc: desc}
	col.c = &core[[]T]{
		src:    src,
		table:  table,
		column: column,
		opts:   buildOptions(opts),
	}
	col.c.fetch = col.fetch
	col.c.onEvent = col.onEvent
	return col, nil
}

func (col *Collection[T]) fetch(ctx context.Context, value string) ([]T, error) {
	raws, err := col.c.src.FetchMany(ctx, Query{
		Table:   col.c.table,
		Column:  col.c.column,
		Value:   value,
		OrderBy: col.orderBy,
		Desc:    col.desc,
	})
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		row, err := model.DecodeAs[T](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (col *Collection[T]) onEvent(gen uint64, _ realtime.ChangeEvent) {
	ctx, value, ok := col.c.observe(gen)
	if !ok {
		return
	}
	col.c.load(ctx, gen, value)
}

// SetValue 필터 값 변경 (이전 구독 해제). 빈 값이면 네트워크 호출 없이 비운다.
func (col *Collection[T]) SetValue(ctx context.Context, value string) error {
	return col.c.setValue(ctx, value)
}

// Value 현재 필터 값
func (col *Collection[T]) Value() string { return col.c.currentValue() }

// Snapshot 현재 상태
func (col *Collection[T]) Snapshot() State[[]T] { return col.c.snapshot() }

// Close 구독 해제
func (col *Collection[T]) Close() error { return col.c.close() }
