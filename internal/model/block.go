package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"classroom-backend/internal/apperr"
)

// Block 슬라이드 블록 (Text | Image | Question | Graph).
// 타입 태그가 모양을 결정하며 다른 변형의 필드를 섞을 수 없다.
type Block interface {
	BlockID() string
	Type() BlockType
	Accept(v BlockVisitor)
}

// BlockVisitor 블록 변형별 처리. 변형이 추가되면 모든 구현체가 컴파일 에러가 된다.
type BlockVisitor interface {
	VisitText(b *TextBlock)
	VisitImage(b *ImageBlock)
	VisitQuestion(b *QuestionBlock)
	VisitGraph(b *GraphBlock)
}

// TextBlock 텍스트 블록
type TextBlock struct {
	ID      string `json:"id" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// ImageBlock 이미지 블록 (url 또는 storagePath 중 하나 필수)
type ImageBlock struct {
	ID          string `json:"id" validate:"required"`
	URL         string `json:"url,omitempty" validate:"required_without=StoragePath"`
	StoragePath string `json:"storagePath,omitempty" validate:"required_without=URL"`
	Alt         string `json:"alt,omitempty"`
}

// QuestionBlock 질문 블록
type QuestionBlock struct {
	ID            string       `json:"id" validate:"required"`
	QuestionType  QuestionType `json:"questionType" validate:"required"`
	Prompt        string       `json:"prompt" validate:"required"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer *AnswerValue `json:"correctAnswer,omitempty"`
}

// GraphBlock 그래프 블록
type GraphBlock struct {
	ID       string  `json:"id" validate:"required"`
	Equation string  `json:"equation" validate:"required"`
	XMin     float64 `json:"xMin"`
	XMax     float64 `json:"xMax"`
	YMin     float64 `json:"yMin"`
	YMax     float64 `json:"yMax"`
}

func (b *TextBlock) BlockID() string     { return b.ID }
func (b *ImageBlock) BlockID() string    { return b.ID }
func (b *QuestionBlock) BlockID() string { return b.ID }
func (b *GraphBlock) BlockID() string    { return b.ID }

func (*TextBlock) Type() BlockType     { return BlockTypeText }
func (*ImageBlock) Type() BlockType    { return BlockTypeImage }
func (*QuestionBlock) Type() BlockType { return BlockTypeQuestion }
func (*GraphBlock) Type() BlockType    { return BlockTypeGraph }

func (b *TextBlock) Accept(v BlockVisitor)     { v.VisitText(b) }
func (b *ImageBlock) Accept(v BlockVisitor)    { v.VisitImage(b) }
func (b *QuestionBlock) Accept(v BlockVisitor) { v.VisitQuestion(b) }
func (b *GraphBlock) Accept(v BlockVisitor)    { v.VisitGraph(b) }

func (b TextBlock) MarshalJSON() ([]byte, error) {
	type alias TextBlock
	return json.Marshal(struct {
		Type BlockType `json:"type"`
		alias
	}{BlockTypeText, alias(b)})
}

func (b ImageBlock) MarshalJSON() ([]byte, error) {
	type alias ImageBlock
	return json.Marshal(struct {
		Type BlockType `json:"type"`
		alias
	}{BlockTypeImage, alias(b)})
}

func (b QuestionBlock) MarshalJSON() ([]byte, error) {
	type alias QuestionBlock
	return json.Marshal(struct {
		Type BlockType `json:"type"`
		alias
	}{BlockTypeQuestion, alias(b)})
}

func (b GraphBlock) MarshalJSON() ([]byte, error) {
	type alias GraphBlock
	return json.Marshal(struct {
		Type BlockType `json:"type"`
		alias
	}{BlockTypeGraph, alias(b)})
}

// DecodeBlock 타입 태그에 맞는 변형으로 엄격하게 디코딩
func DecodeBlock(data []byte) (Block, error) {
	var head struct {
		Type BlockType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, apperr.Invalid("block: %v", err)
	}

	switch head.Type {
	case BlockTypeText:
		type alias TextBlock
		var w struct {
			Type BlockType `json:"type"`
			alias
		}
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, apperr.Invalid("text block: %v", err)
		}
		b := TextBlock(w.alias)
		return &b, nil
	case BlockTypeImage:
		type alias ImageBlock
		var w struct {
			Type BlockType `json:"type"`
			alias
		}
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, apperr.Invalid("image block: %v", err)
		}
		b := ImageBlock(w.alias)
		return &b, nil
	case BlockTypeQuestion:
		type alias QuestionBlock
		var w struct {
			Type BlockType `json:"type"`
			alias
		}
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, apperr.Invalid("question block: %v", err)
		}
		b := QuestionBlock(w.alias)
		return &b, nil
	case BlockTypeGraph:
		type alias GraphBlock
		var w struct {
			Type BlockType `json:"type"`
			alias
		}
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, apperr.Invalid("graph block: %v", err)
		}
		b := GraphBlock(w.alias)
		return &b, nil
	case "":
		return nil, apperr.Invalid("block: missing type")
	}
	return nil, apperr.Invalid("block: unknown type %q", head.Type)
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Blocks 슬라이드의 순서 있는 블록 목록
type Blocks []Block

func (bs Blocks) MarshalJSON() ([]byte, error) {
	if bs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Block(bs))
}

func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return apperr.Invalid("blocks: %v", err)
	}
	out := make(Blocks, 0, len(raws))
	for i, raw := range raws {
		b, err := DecodeBlock(raw)
		if err != nil {
			return fmt.Errorf("blocks[%d]: %w", i, err)
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

// Find ID로 블록 조회
func (bs Blocks) Find(id string) Block {
	for _, b := range bs {
		if b.BlockID() == id {
			return b
		}
	}
	return nil
}

// Validate 블록 ID 중복과 변형별 규칙 검사
func (bs Blocks) Validate() error {
	seen := make(map[string]struct{}, len(bs))
	for i, b := range bs {
		if b == nil {
			return apperr.Invalid("blocks[%d]: nil block", i)
		}
		if _, dup := seen[b.BlockID()]; dup {
			return apperr.Invalid("blocks[%d]: duplicate block id %q", i, b.BlockID())
		}
		seen[b.BlockID()] = struct{}{}
		if err := ValidateBlock(b); err != nil {
			return fmt.Errorf("blocks[%d]: %w", i, err)
		}
	}
	return nil
}

var validate = validator.New()

// ValidateBlock 단일 블록 검증
func ValidateBlock(b Block) error {
	if err := validate.Struct(b); err != nil {
		return apperr.Invalid("%s block %q: %v", b.Type(), b.BlockID(), err)
	}
	v := &blockValidator{}
	b.Accept(v)
	return v.err
}

type blockValidator struct {
	err error
}

func (v *blockValidator) VisitText(*TextBlock) {}

func (v *blockValidator) VisitImage(*ImageBlock) {}

func (v *blockValidator) VisitQuestion(b *QuestionBlock) {
	if !b.QuestionType.Valid() {
		v.err = apperr.Invalid("question %q: unknown question type %q", b.ID, b.QuestionType)
		return
	}
	switch b.QuestionType {
	case QuestionMultipleChoice:
		if len(b.Options) < 2 {
			v.err = apperr.Invalid("question %q: multiple choice needs at least 2 options", b.ID)
			return
		}
		if b.CorrectAnswer != nil {
			s, ok := b.CorrectAnswer.AsString()
			if !ok || !containsFold(b.Options, s) {
				v.err = apperr.Invalid("question %q: correct answer must be one of the options", b.ID)
			}
		}
	case QuestionTrueFalse:
		if b.CorrectAnswer != nil && b.CorrectAnswer.Kind() != KindBool {
			v.err = apperr.Invalid("question %q: true/false correct answer must be a boolean", b.ID)
		}
	case QuestionNumeric:
		if b.CorrectAnswer != nil && b.CorrectAnswer.Kind() != KindNumber {
			v.err = apperr.Invalid("question %q: numeric correct answer must be a number", b.ID)
		}
	}
}

func (v *blockValidator) VisitGraph(b *GraphBlock) {
	if !(b.XMin < b.XMax) || !(b.YMin < b.YMax) {
		v.err = apperr.Invalid("graph %q: axis bounds must satisfy min < max", b.ID)
	}
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

// Evaluate 제출 값을 정답과 비교. 정답이 없으면 nil (미채점).
func (b *QuestionBlock) Evaluate(answer AnswerValue) *bool {
	if b.CorrectAnswer == nil || b.CorrectAnswer.IsZero() {
		return nil
	}
	correct := false
	switch b.QuestionType {
	case QuestionNumeric:
		want, _ := b.CorrectAnswer.AsNumber()
		if got, ok := numberOf(answer); ok {
			correct = math.Abs(got-want) <= numberTolerance
		}
	case QuestionTrueFalse:
		want, _ := b.CorrectAnswer.AsBool()
		if got, ok := boolOf(answer); ok {
			correct = got == want
		}
	default:
		correct = StringValue(b.CorrectAnswer.String()).Equal(StringValue(answer.String()))
	}
	return &correct
}

func numberOf(v AnswerValue) (float64, bool) {
	if n, ok := v.AsNumber(); ok {
		return n, true
	}
	if s, ok := v.AsString(); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return n, err == nil
	}
	return 0, false
}

func boolOf(v AnswerValue) (bool, bool) {
	if b, ok := v.AsBool(); ok {
		return b, true
	}
	if s, ok := v.AsString(); ok {
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
		return b, err == nil
	}
	return false, false
}
