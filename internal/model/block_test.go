package model

import (
	"encoding/json"
	"strings"
	"testing"

	"classroom-backend/internal/apperr"
)

func TestDecodeBlock_Variants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want BlockType
	}{
		{"text", `{"id":"b1","type":"text","content":"hello"}`, BlockTypeText},
		{"image", `{"id":"b2","type":"image","url":"https://x/y.png","alt":"y"}`, BlockTypeImage},
		{"question", `{"id":"b3","type":"question","questionType":"numeric","prompt":"2+2?","correctAnswer":4}`, BlockTypeQuestion},
		{"graph", `{"id":"b4","type":"graph","equation":"y=x","xMin":-1,"xMax":1,"yMin":-1,"yMax":1}`, BlockTypeGraph},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := DecodeBlock([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if b.Type() != tc.want {
				t.Fatalf("type: want=%s got=%s", tc.want, b.Type())
			}
		})
	}
}

func TestDecodeBlock_RejectsMixedFields(t *testing.T) {
	_, err := DecodeBlock([]byte(`{"id":"b1","type":"text","content":"hi","url":"https://x"}`))
	if err == nil {
		t.Fatalf("expected error for text block carrying an image field")
	}
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("kind: want=%s got=%s", apperr.KindInvalidInput, apperr.KindOf(err))
	}
}

func TestDecodeBlock_UnknownType(t *testing.T) {
	if _, err := DecodeBlock([]byte(`{"id":"b1","type":"video"}`)); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := DecodeBlock([]byte(`{"id":"b1"}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestBlocks_JSONKeepsTypeTag(t *testing.T) {
	correct := StringValue("b")
	in := Blocks{
		&TextBlock{ID: "t1", Content: "intro"},
		&QuestionBlock{ID: "q1", QuestionType: QuestionMultipleChoice, Prompt: "pick", Options: []string{"a", "b"}, CorrectAnswer: &correct},
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"type":"question"`) {
		t.Fatalf("expected type tag in %s", raw)
	}

	var out Blocks
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	q, ok := out[1].(*QuestionBlock)
	if !ok {
		t.Fatalf("expected *QuestionBlock, got %T", out[1])
	}
	if q.CorrectAnswer == nil || !q.CorrectAnswer.Equal(correct) {
		t.Fatalf("correct answer lost: %+v", q.CorrectAnswer)
	}
}

func TestBlocks_NilMarshalsAsEmptyList(t *testing.T) {
	raw, err := json.Marshal(Blocks(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("want=[] got=%s", raw)
	}
}

func TestValidateBlock(t *testing.T) {
	tf := StringValue("yes")
	num := StringValue("four")
	bad := StringValue("c")
	cases := []struct {
		name  string
		block Block
		ok    bool
	}{
		{"text ok", &TextBlock{ID: "t", Content: "x"}, true},
		{"text empty", &TextBlock{ID: "t"}, false},
		{"image url", &ImageBlock{ID: "i", URL: "https://x"}, true},
		{"image storage path", &ImageBlock{ID: "i", StoragePath: "lessons/a/b.png"}, true},
		{"image missing source", &ImageBlock{ID: "i"}, false},
		{"mc too few options", &QuestionBlock{ID: "q", QuestionType: QuestionMultipleChoice, Prompt: "p", Options: []string{"a"}}, false},
		{"mc answer not an option", &QuestionBlock{ID: "q", QuestionType: QuestionMultipleChoice, Prompt: "p", Options: []string{"a", "b"}, CorrectAnswer: &bad}, false},
		{"true false needs bool", &QuestionBlock{ID: "q", QuestionType: QuestionTrueFalse, Prompt: "p", CorrectAnswer: &tf}, false},
		{"numeric needs number", &QuestionBlock{ID: "q", QuestionType: QuestionNumeric, Prompt: "p", CorrectAnswer: &num}, false},
		{"short answer no correct", &QuestionBlock{ID: "q", QuestionType: QuestionShortAnswer, Prompt: "p"}, true},
		{"unknown question type", &QuestionBlock{ID: "q", QuestionType: "essay", Prompt: "p"}, false},
		{"graph ok", &GraphBlock{ID: "g", Equation: "y=x", XMin: 0, XMax: 1, YMin: 0, YMax: 1}, true},
		{"graph inverted", &GraphBlock{ID: "g", Equation: "y=x", XMin: 1, XMax: 0, YMin: 0, YMax: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateBlock(tc.block)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBlocks_ValidateRejectsDuplicateIDs(t *testing.T) {
	bs := Blocks{&TextBlock{ID: "a", Content: "x"}, &TextBlock{ID: "a", Content: "y"}}
	if err := bs.Validate(); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestQuestionBlock_Evaluate(t *testing.T) {
	four := NumberValue(4)
	yes := BoolValue(true)
	paris := StringValue("Paris")

	numeric := &QuestionBlock{ID: "n", QuestionType: QuestionNumeric, Prompt: "2+2", CorrectAnswer: &four}
	if got := numeric.Evaluate(NumberValue(4.0000000001)); got == nil || !*got {
		t.Fatalf("numeric within tolerance should be correct")
	}
	if got := numeric.Evaluate(StringValue(" 4 ")); got == nil || !*got {
		t.Fatalf("numeric string should be parsed")
	}
	if got := numeric.Evaluate(NumberValue(5)); got == nil || *got {
		t.Fatalf("5 should be incorrect")
	}

	tf := &QuestionBlock{ID: "t", QuestionType: QuestionTrueFalse, Prompt: "sky blue?", CorrectAnswer: &yes}
	if got := tf.Evaluate(StringValue("true")); got == nil || !*got {
		t.Fatalf("'true' string should match true")
	}

	short := &QuestionBlock{ID: "s", QuestionType: QuestionShortAnswer, Prompt: "capital", CorrectAnswer: &paris}
	if got := short.Evaluate(StringValue("  paris ")); got == nil || !*got {
		t.Fatalf("short answer should compare case-insensitively")
	}

	open := &QuestionBlock{ID: "o", QuestionType: QuestionShortAnswer, Prompt: "thoughts?"}
	if got := open.Evaluate(StringValue("anything")); got != nil {
		t.Fatalf("no correct answer should leave correctness unset, got %v", *got)
	}
}

type countingVisitor struct {
	text, image, question, graph int
}

func (c *countingVisitor) VisitText(*TextBlock)         { c.text++ }
func (c *countingVisitor) VisitImage(*ImageBlock)       { c.image++ }
func (c *countingVisitor) VisitQuestion(*QuestionBlock) { c.question++ }
func (c *countingVisitor) VisitGraph(*GraphBlock)       { c.graph++ }

func TestBlockVisitor_Dispatch(t *testing.T) {
	bs := Blocks{
		&TextBlock{ID: "1", Content: "a"},
		&QuestionBlock{ID: "2", QuestionType: QuestionShortAnswer, Prompt: "p"},
		&QuestionBlock{ID: "3", QuestionType: QuestionShortAnswer, Prompt: "p"},
		&GraphBlock{ID: "4", Equation: "y=x", XMax: 1, YMax: 1},
	}
	v := &countingVisitor{}
	for _, b := range bs {
		b.Accept(v)
	}
	if v.text != 1 || v.image != 0 || v.question != 2 || v.graph != 1 {
		t.Fatalf("unexpected counts: %+v", *v)
	}
}
