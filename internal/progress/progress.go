// Package progress builds the teacher's per-student, per-slide answer grid.
package progress

import (
	"fmt"
	"slices"

	"classroom-backend/internal/controls"
	"classroom-backend/internal/model"
)

// Status 학생-슬라이드 칸 상태
type Status string

const (
	StatusNotAttempted Status = "not_attempted"
	StatusPending      Status = "pending"
	StatusCorrect      Status = "correct"
	StatusIncorrect    Status = "incorrect"
	StatusMixed        Status = "mixed"
)

// DeriveStatus 응답 목록에서 상태 결정. 미채점 응답이 하나라도 있으면 pending.
func DeriveStatus(answers []model.StudentAnswer) Status {
	if len(answers) == 0 {
		return StatusNotAttempted
	}
	correct, incorrect := 0, 0
	for _, a := range answers {
		if a.IsCorrect == nil {
			return StatusPending
		}
		if *a.IsCorrect {
			correct++
		} else {
			incorrect++
		}
	}
	switch {
	case incorrect == 0:
		return StatusCorrect
	case correct == 0:
		return StatusIncorrect
	}
	return StatusMixed
}

// Cell 한 칸
type Cell struct {
	SlideID   string `json:"slide_id"`
	Index     int    `json:"index"`
	Questions int    `json:"questions"`
	Status    Status `json:"status"`
	Attempts  int    `json:"attempts"`
}

// Row 학생 한 명
type Row struct {
	StudentID       string   `json:"student_id"`
	Label           string   `json:"label"`
	CurrentSlide    int      `json:"current_slide"`
	Online          bool     `json:"online"`
	Cells           []Cell   `json:"cells"`
	CompletedBlocks []string `json:"completed_blocks"`
}

// Grid 진행 현황
type Grid struct {
	SessionID string         `json:"session_id"`
	Anonymous bool           `json:"anonymous"`
	Slides    []SlideHeader  `json:"slides"`
	Rows      []Row          `json:"rows"`
	Summary   map[Status]int `json:"summary"`
}

// SlideHeader 열 머리
type SlideHeader struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Title     string `json:"title"`
	Questions int    `json:"questions"`
}

// Input 그리드 입력
type Input struct {
	Session   *model.PresentationSession
	Students  []model.SessionParticipant
	Slides    []model.Slide
	Answers   []model.StudentAnswer
	Online    map[string]bool
	Anonymize bool
	SortBy    controls.SortKey
}

// BuildGrid 정렬은 실제 이름 기준이라 익명 모드를 켜도 행 순서와 학생 매핑은 바뀌지 않는다
func BuildGrid(in Input) Grid {
	students := make([]model.SessionParticipant, len(in.Students))
	copy(students, in.Students)
	controls.SortStudents(students, in.SortBy)

	type key struct{ student, slide string }
	bySlot := map[key][]model.StudentAnswer{}
	done := map[string]map[string]bool{}
	for _, a := range in.Answers {
		k := key{a.StudentID, a.SlideID}
		bySlot[k] = append(bySlot[k], a)
		if done[a.StudentID] == nil {
			done[a.StudentID] = map[string]bool{}
		}
		done[a.StudentID][a.BlockID] = true
	}

	headers := make([]SlideHeader, len(in.Slides))
	for i, s := range in.Slides {
		headers[i] = SlideHeader{ID: s.ID, Index: i, Title: s.Title, Questions: countQuestions(s.BlockList())}
	}

	grid := Grid{
		Anonymous: in.Anonymize,
		Slides:    headers,
		Rows:      make([]Row, 0, len(students)),
		Summary: map[Status]int{
			StatusNotAttempted: 0,
			StatusPending:      0,
			StatusCorrect:      0,
			StatusIncorrect:    0,
			StatusMixed:        0,
		},
	}
	if in.Session != nil {
		grid.SessionID = in.Session.ID
	}

	for pos, st := range students {
		row := Row{
			StudentID:       st.UserID,
			Label:           label(st, pos, in.Anonymize),
			CurrentSlide:    st.CurrentSlide,
			Online:          in.Online[st.UserID],
			Cells:           make([]Cell, len(headers)),
			CompletedBlocks: completed(done[st.UserID]),
		}
		if in.Session != nil {
			row.CurrentSlide = controls.EffectiveSlide(in.Session, &st)
		}
		for i, h := range headers {
			answers := bySlot[key{st.UserID, h.ID}]
			status := DeriveStatus(answers)
			row.Cells[i] = Cell{
				SlideID:   h.ID,
				Index:     h.Index,
				Questions: h.Questions,
				Status:    status,
				Attempts:  len(answers),
			}
			grid.Summary[status]++
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}

func label(p model.SessionParticipant, pos int, anonymize bool) string {
	if anonymize {
		return fmt.Sprintf("Student %d", pos+1)
	}
	if p.User == nil {
		return p.UserID
	}
	return p.User.DisplayName()
}

func completed(blocks map[string]bool) []string {
	out := make([]string, 0, len(blocks))
	for id := range blocks {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// questionCounter 질문 블록 수 집계
type questionCounter struct{ n int }

func (c *questionCounter) VisitText(*model.TextBlock)         {}
func (c *questionCounter) VisitImage(*model.ImageBlock)       {}
func (c *questionCounter) VisitQuestion(*model.QuestionBlock) { c.n++ }
func (c *questionCounter) VisitGraph(*model.GraphBlock)       {}

func countQuestions(blocks model.Blocks) int {
	c := &questionCounter{}
	for _, b := range blocks {
		b.Accept(c)
	}
	return c.n
}
