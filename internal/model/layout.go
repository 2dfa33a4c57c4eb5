package model

import (
	"math"

	"classroom-backend/internal/apperr"
)

// Layout 슬라이드 배치. Grid와 Columns(레거시)가 함께 있으면 Grid가 우선한다.
type Layout struct {
	Grid    *GridLayout   `json:"grid,omitempty"`
	Columns *ColumnLayout `json:"columns,omitempty"`
}

// GridLayout 행/열 기반 배치
type GridLayout struct {
	Rows  int        `json:"rows"`
	Cols  int        `json:"cols"`
	Items []GridItem `json:"items"`
}

// GridItem 블록별 그리드 위치
type GridItem struct {
	BlockID string `json:"blockId"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	RowSpan int    `json:"rowSpan,omitempty"`
	ColSpan int    `json:"colSpan,omitempty"`
}

// ColumnLayout 레거시 컬럼 배치 (폭 합계 100%)
type ColumnLayout struct {
	Widths []float64    `json:"widths"`
	Items  []ColumnItem `json:"items"`
}

// ColumnItem 블록별 컬럼 인덱스
type ColumnItem struct {
	BlockID string `json:"blockId"`
	Column  int    `json:"column"`
}

// LayoutScheme 실제 적용된 배치 방식
type LayoutScheme string

const (
	SchemeGrid    LayoutScheme = "grid"
	SchemeColumns LayoutScheme = "columns"
	SchemeStack   LayoutScheme = "stack"
)

// Placement 블록 하나의 최종 위치
type Placement struct {
	BlockID string       `json:"blockId"`
	Scheme  LayoutScheme `json:"scheme"`
	Row     int          `json:"row"`
	Col     int          `json:"col"`
	RowSpan int          `json:"rowSpan"`
	ColSpan int          `json:"colSpan"`
	Width   float64      `json:"width,omitempty"` // 컬럼 배치에서의 폭(%)
}

const widthTolerance = 0.01

// Scheme 적용될 배치 방식
func (l *Layout) Scheme() LayoutScheme {
	switch {
	case l == nil:
		return SchemeStack
	case l.Grid != nil:
		return SchemeGrid
	case l.Columns != nil:
		return SchemeColumns
	}
	return SchemeStack
}

// Validate 배치 정의 검증
func (l *Layout) Validate() error {
	if l == nil {
		return nil
	}
	if g := l.Grid; g != nil {
		if g.Rows <= 0 || g.Cols <= 0 {
			return apperr.Invalid("grid layout: rows and cols must be positive")
		}
		for _, it := range g.Items {
			rs, cs := span(it.RowSpan), span(it.ColSpan)
			if it.Row < 0 || it.Col < 0 || it.Row+rs > g.Rows || it.Col+cs > g.Cols {
				return apperr.Invalid("grid layout: block %q is outside the grid", it.BlockID)
			}
		}
	}
	if c := l.Columns; c != nil {
		if len(c.Widths) == 0 {
			return apperr.Invalid("column layout: at least one column is required")
		}
		total := 0.0
		for _, w := range c.Widths {
			if w <= 0 {
				return apperr.Invalid("column layout: widths must be positive")
			}
			total += w
		}
		if math.Abs(total-100) > widthTolerance {
			return apperr.Invalid("column layout: widths sum to %.2f, want 100", total)
		}
		for _, it := range c.Items {
			if it.Column < 0 || it.Column >= len(c.Widths) {
				return apperr.Invalid("column layout: block %q has column %d out of range", it.BlockID, it.Column)
			}
		}
	}
	return nil
}

// Resolve 블록 순서대로 위치 계산. 선택된 방식에 위치가 없는 블록은 배치된 블록 아래에 쌓는다.
func (l *Layout) Resolve(blocks Blocks) []Placement {
	out := make([]Placement, 0, len(blocks))
	var unplaced []string

	switch l.Scheme() {
	case SchemeGrid:
		items := make(map[string]GridItem, len(l.Grid.Items))
		for _, it := range l.Grid.Items {
			items[it.BlockID] = it
		}
		next := 0
		for _, b := range blocks {
			it, ok := items[b.BlockID()]
			if !ok {
				unplaced = append(unplaced, b.BlockID())
				continue
			}
			p := Placement{BlockID: b.BlockID(), Scheme: SchemeGrid, Row: it.Row, Col: it.Col, RowSpan: span(it.RowSpan), ColSpan: span(it.ColSpan)}
			if end := p.Row + p.RowSpan; end > next {
				next = end
			}
			out = append(out, p)
		}
		for _, id := range unplaced {
			out = append(out, Placement{BlockID: id, Scheme: SchemeGrid, Row: next, Col: 0, RowSpan: 1, ColSpan: l.Grid.Cols})
			next++
		}

	case SchemeColumns:
		cols := make(map[string]int, len(l.Columns.Items))
		for _, it := range l.Columns.Items {
			cols[it.BlockID] = it.Column
		}
		depth := make([]int, len(l.Columns.Widths))
		for _, b := range blocks {
			c, ok := cols[b.BlockID()]
			if !ok || c < 0 || c >= len(depth) {
				unplaced = append(unplaced, b.BlockID())
				continue
			}
			out = append(out, Placement{BlockID: b.BlockID(), Scheme: SchemeColumns, Row: depth[c], Col: c, RowSpan: 1, ColSpan: 1, Width: l.Columns.Widths[c]})
			depth[c]++
		}
		next := 0
		for _, d := range depth {
			if d > next {
				next = d
			}
		}
		for _, id := range unplaced {
			out = append(out, Placement{BlockID: id, Scheme: SchemeColumns, Row: next, Col: 0, RowSpan: 1, ColSpan: len(depth), Width: 100})
			next++
		}

	default:
		for i, b := range blocks {
			out = append(out, Placement{BlockID: b.BlockID(), Scheme: SchemeStack, Row: i, Col: 0, RowSpan: 1, ColSpan: 1, Width: 100})
		}
	}
	return out
}

func span(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
