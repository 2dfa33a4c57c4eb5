package model

import "strings"

// BlockType 블록 타입 태그
type BlockType string

const (
	BlockTypeText     BlockType = "text"
	BlockTypeImage    BlockType = "image"
	BlockTypeQuestion BlockType = "question"
	BlockTypeGraph    BlockType = "graph"
)

func (t BlockType) String() string {
	return string(t)
}

// QuestionType 질문 블록 종류
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionNumeric        QuestionType = "numeric"
)

func (q QuestionType) String() string {
	return string(q)
}

// Valid 알려진 질문 종류인지 확인
func (q QuestionType) Valid() bool {
	switch q {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionNumeric:
		return true
	}
	return false
}

// AuthProvider 가입 경로
type AuthProvider string

const (
	ProviderPassword AuthProvider = "password"
	ProviderGoogle   AuthProvider = "google"
)

func (p AuthProvider) String() string {
	return string(p)
}

// 사용자 설정 기본값
const (
	DefaultTTSVoice = "alloy"
	DefaultTTSModel = "tts-1"
	DefaultLLMModel = "gpt-4o-mini"
)

// JoinCodeAlphabet 혼동되는 문자(0/O, 1/I/L)를 뺀 참가 코드 문자 집합
const JoinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// JoinCodeLength 참가 코드 길이
const JoinCodeLength = 6

// NormalizeJoinCode 공백 제거 + 대문자
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
