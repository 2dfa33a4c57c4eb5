package model

import "testing"

func threeBlocks() Blocks {
	return Blocks{
		&TextBlock{ID: "a", Content: "a"},
		&TextBlock{ID: "b", Content: "b"},
		&TextBlock{ID: "c", Content: "c"},
	}
}

func TestLayout_GridTakesPrecedence(t *testing.T) {
	l := &Layout{
		Grid: &GridLayout{Rows: 2, Cols: 2, Items: []GridItem{
			{BlockID: "a", Row: 0, Col: 1},
			{BlockID: "b", Row: 1, Col: 0, ColSpan: 2},
		}},
		Columns: &ColumnLayout{Widths: []float64{50, 50}, Items: []ColumnItem{
			{BlockID: "a", Column: 0},
			{BlockID: "b", Column: 1},
		}},
	}
	if l.Scheme() != SchemeGrid {
		t.Fatalf("scheme: want=%s got=%s", SchemeGrid, l.Scheme())
	}

	got := l.Resolve(threeBlocks())
	if len(got) != 3 {
		t.Fatalf("placements: want=3 got=%d", len(got))
	}
	if got[0].BlockID != "a" || got[0].Row != 0 || got[0].Col != 1 || got[0].Scheme != SchemeGrid {
		t.Fatalf("a placed from columns instead of grid: %+v", got[0])
	}
	if got[1].ColSpan != 2 {
		t.Fatalf("b colspan: want=2 got=%d", got[1].ColSpan)
	}
	// c is not on the grid and is stacked below the placed rows
	if got[2].BlockID != "c" || got[2].Row != 2 {
		t.Fatalf("c: want row 2, got %+v", got[2])
	}
}

func TestLayout_ColumnsWhenNoGrid(t *testing.T) {
	l := &Layout{Columns: &ColumnLayout{Widths: []float64{30, 70}, Items: []ColumnItem{
		{BlockID: "a", Column: 1},
		{BlockID: "b", Column: 1},
		{BlockID: "c", Column: 0},
	}}}
	got := l.Resolve(threeBlocks())
	if got[0].Col != 1 || got[0].Row != 0 || got[0].Width != 70 {
		t.Fatalf("a: %+v", got[0])
	}
	if got[1].Col != 1 || got[1].Row != 1 {
		t.Fatalf("b should stack under a: %+v", got[1])
	}
	if got[2].Col != 0 || got[2].Row != 0 || got[2].Width != 30 {
		t.Fatalf("c: %+v", got[2])
	}
}

func TestLayout_NilStacks(t *testing.T) {
	var l *Layout
	got := l.Resolve(threeBlocks())
	for i, p := range got {
		if p.Scheme != SchemeStack || p.Row != i {
			t.Fatalf("placement %d: %+v", i, p)
		}
	}
}

func TestLayout_Validate(t *testing.T) {
	cases := []struct {
		name   string
		layout *Layout
		ok     bool
	}{
		{"nil", nil, true},
		{"widths sum to 100", &Layout{Columns: &ColumnLayout{Widths: []float64{33.33, 33.33, 33.34}}}, true},
		{"widths off", &Layout{Columns: &ColumnLayout{Widths: []float64{50, 40}}}, false},
		{"column index out of range", &Layout{Columns: &ColumnLayout{Widths: []float64{100}, Items: []ColumnItem{{BlockID: "a", Column: 1}}}}, false},
		{"grid ok", &Layout{Grid: &GridLayout{Rows: 1, Cols: 2, Items: []GridItem{{BlockID: "a", Col: 1}}}}, true},
		{"grid overflow", &Layout{Grid: &GridLayout{Rows: 1, Cols: 2, Items: []GridItem{{BlockID: "a", Col: 1, ColSpan: 2}}}}, false},
		{"grid empty dims", &Layout{Grid: &GridLayout{}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.layout.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
