package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind AnswerValue에 담긴 스칼라 종류
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindString
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	}
	return "none"
}

const numberTolerance = 1e-9

// AnswerValue string | number | bool 스칼라.
// JSON으로는 감싸지 않은 스칼라 그대로 직렬화된다.
type AnswerValue struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

func StringValue(s string) AnswerValue  { return AnswerValue{kind: KindString, str: s} }
func NumberValue(n float64) AnswerValue { return AnswerValue{kind: KindNumber, num: n} }
func BoolValue(b bool) AnswerValue      { return AnswerValue{kind: KindBool, b: b} }

func (v AnswerValue) Kind() ValueKind { return v.kind }
func (v AnswerValue) IsZero() bool    { return v.kind == KindNone }

// AsString 문자열 값 (다른 종류면 ok=false)
func (v AnswerValue) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber 숫자 값
func (v AnswerValue) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool 불리언 값
func (v AnswerValue) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Equal 종류와 값 비교. 숫자는 허용 오차, 문자열은 공백 제거 후 대소문자 무시.
func (v AnswerValue) Equal(other AnswerValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return strings.EqualFold(strings.TrimSpace(v.str), strings.TrimSpace(other.str))
	case KindNumber:
		return math.Abs(v.num-other.num) <= numberTolerance
	case KindBool:
		return v.b == other.b
	}
	return true
}

func (v AnswerValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = AnswerValue{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '{', '[':
		return errors.New("answer value must be a string, number or boolean")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("answer value: %w", err)
		}
		*v = NumberValue(n)
	}
	return nil
}

// Value driver.Valuer (jsonb 컬럼)
func (v AnswerValue) Value() (driver.Value, error) {
	if v.kind == KindNone {
		return nil, nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan sql.Scanner
func (v *AnswerValue) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v = AnswerValue{}
		return nil
	case []byte:
		return v.UnmarshalJSON(s)
	case string:
		return v.UnmarshalJSON([]byte(s))
	}
	return fmt.Errorf("answer value: unsupported scan type %T", src)
}

// GormDataType GORM 컬럼 타입
func (AnswerValue) GormDataType() string {
	return "jsonb"
}
