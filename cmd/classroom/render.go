package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"classroom-backend/internal/model"
	"classroom-backend/internal/progress"
)

// slideRenderer 블록을 터미널 텍스트로 출력
type slideRenderer struct {
	w       io.Writer
	answers map[string]model.AnswerValue // blockID -> 내 마지막 응답
}

func (r *slideRenderer) VisitText(b *model.TextBlock) {
	fmt.Fprintf(r.w, "%s\n\n", b.Content)
}

func (r *slideRenderer) VisitImage(b *model.ImageBlock) {
	src := b.URL
	if src == "" {
		src = b.StoragePath
	}
	alt := b.Alt
	if alt == "" {
		alt = "image"
	}
	fmt.Fprintf(r.w, "[%s] %s\n\n", alt, src)
}

func (r *slideRenderer) VisitQuestion(b *model.QuestionBlock) {
	fmt.Fprintf(r.w, "? %s  (%s, id=%s)\n", b.Prompt, b.QuestionType, b.ID)
	for i, opt := range b.Options {
		fmt.Fprintf(r.w, "    %d) %s\n", i+1, opt)
	}
	if b.QuestionType == model.QuestionTrueFalse {
		fmt.Fprintln(r.w, "    true / false")
	}
	if v, ok := r.answers[b.ID]; ok {
		fmt.Fprintf(r.w, "    your answer: %s\n", v)
	}
	fmt.Fprintln(r.w)
}

func (r *slideRenderer) VisitGraph(b *model.GraphBlock) {
	fmt.Fprintf(r.w, "graph y = %s  on [%g, %g]\n\n", b.Equation, b.XMin, b.XMax)
}

// renderSlide index는 0부터, total은 전체 슬라이드 수
func renderSlide(w io.Writer, s model.Slide, index, total int, answers map[string]model.AnswerValue) {
	title := s.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(w, "── slide %d/%d: %s ──\n\n", index+1, total, title)
	r := &slideRenderer{w: w, answers: answers}
	for _, b := range s.BlockList() {
		b.Accept(r)
	}
}

// slideText TTS로 읽을 본문 (텍스트와 질문)
func slideText(s model.Slide) string {
	var parts []string
	if s.Title != "" {
		parts = append(parts, s.Title)
	}
	for _, b := range s.BlockList() {
		switch v := b.(type) {
		case *model.TextBlock:
			parts = append(parts, v.Content)
		case *model.QuestionBlock:
			parts = append(parts, v.Prompt)
		}
	}
	return strings.Join(parts, ". ")
}

// parseAnswer 질문 종류에 맞춰 입력을 값으로 바꾼다.
// 객관식은 보기 번호도 받는다.
func parseAnswer(q *model.QuestionBlock, raw string) (model.AnswerValue, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.AnswerValue{}, fmt.Errorf("answer is empty")
	}
	switch q.QuestionType {
	case model.QuestionNumeric:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.AnswerValue{}, fmt.Errorf("%q is not a number", raw)
		}
		return model.NumberValue(n), nil
	case model.QuestionTrueFalse:
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return model.AnswerValue{}, fmt.Errorf("answer true or false")
		}
		return model.BoolValue(b), nil
	case model.QuestionMultipleChoice:
		if i, err := strconv.Atoi(raw); err == nil && i >= 1 && i <= len(q.Options) {
			return model.StringValue(q.Options[i-1]), nil
		}
	}
	return model.StringValue(raw), nil
}

var statusMarks = map[progress.Status]string{
	progress.StatusNotAttempted: "·",
	progress.StatusPending:      "…",
	progress.StatusCorrect:      "✓",
	progress.StatusIncorrect:    "✗",
	progress.StatusMixed:        "±",
}

// renderGrid 학생 x 슬라이드 표
func renderGrid(w io.Writer, g *progress.Grid) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	header := []string{"student", "at", ""}
	for _, s := range g.Slides {
		header = append(header, strconv.Itoa(s.Index+1))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, row := range g.Rows {
		online := " "
		if row.Online {
			online = "●"
		}
		cols := []string{row.Label, strconv.Itoa(row.CurrentSlide + 1), online}
		for _, c := range row.Cells {
			mark := statusMarks[c.Status]
			if c.Questions == 0 {
				mark = " "
			}
			cols = append(cols, mark)
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	_ = tw.Flush()

	if len(g.Rows) == 0 {
		fmt.Fprintln(w, "(no students yet)")
		return
	}
	fmt.Fprintf(w, "correct %d  incorrect %d  mixed %d  pending %d  not attempted %d\n",
		g.Summary[progress.StatusCorrect], g.Summary[progress.StatusIncorrect], g.Summary[progress.StatusMixed],
		g.Summary[progress.StatusPending], g.Summary[progress.StatusNotAttempted])
}
