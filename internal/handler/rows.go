package handler

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/model"
	"classroom-backend/internal/store"
)

// RowSelector 범용 행 조회
type RowSelector interface {
	Select(ctx context.Context, q store.Query) ([]model.Row, error)
}

// FilterAuthorizer 테이블/필터별 읽기 권한
type FilterAuthorizer interface {
	AuthorizeFilter(ctx context.Context, userID string, table model.Table, column, value string) error
}

// RowsHandler 실시간 동기화 훅의 초기 조회용 엔드포인트
type RowsHandler struct {
	rows   RowSelector
	access FilterAuthorizer
}

// NewRowsHandler RowsHandler 생성
func NewRowsHandler(rows RowSelector, access FilterAuthorizer) *RowsHandler {
	return &RowsHandler{rows: rows, access: access}
}

// Select GET /api/rows/:table?column=&value=&order=&desc=&single=
// single=true면 객체 하나 또는 null, 아니면 배열.
func (h *RowsHandler) Select(c *fiber.Ctx) error {
	table, err := model.ParseTable(c.Params("table"))
	if err != nil {
		return fail(c, err)
	}

	q := store.Query{
		Table:   table,
		Column:  c.Query("column"),
		Value:   c.Query("value"),
		OrderBy: c.Query("order"),
	}
	q.Desc, _ = strconv.ParseBool(c.Query("desc", "false"))
	q.Single, _ = strconv.ParseBool(c.Query("single", "false"))

	userID := auth.UserID(c)
	// 설정은 본인 행만
	if table == model.TableUserSettings {
		q.Column = "user_id"
		q.Value = userID
	}
	if err := q.Validate(); err != nil {
		return fail(c, err)
	}
	if err := h.access.AuthorizeFilter(c.UserContext(), userID, q.Table, q.Column, q.Value); err != nil {
		return fail(c, err)
	}

	rows, err := h.rows.Select(c.UserContext(), q)
	if err != nil {
		return fail(c, err)
	}
	if q.Single {
		if len(rows) == 0 {
			return c.JSON(nil)
		}
		return c.JSON(rows[0])
	}
	return c.JSON(rows)
}
