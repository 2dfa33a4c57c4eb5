package model

import (
	"encoding/json"
	"testing"
)

func TestAnswerValue_JSONScalar(t *testing.T) {
	cases := []struct {
		raw  string
		kind ValueKind
	}{
		{`"hello"`, KindString},
		{`42.5`, KindNumber},
		{`true`, KindBool},
		{`null`, KindNone},
	}
	for _, tc := range cases {
		var v AnswerValue
		if err := json.Unmarshal([]byte(tc.raw), &v); err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if v.Kind() != tc.kind {
			t.Fatalf("%s: kind want=%s got=%s", tc.raw, tc.kind, v.Kind())
		}
		out, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.raw, err)
		}
		if string(out) != tc.raw {
			t.Fatalf("bare scalar: want=%s got=%s", tc.raw, out)
		}
	}
}

func TestAnswerValue_RejectsCompound(t *testing.T) {
	var v AnswerValue
	if err := json.Unmarshal([]byte(`{"a":1}`), &v); err == nil {
		t.Fatalf("expected error for object")
	}
	if err := json.Unmarshal([]byte(`[1]`), &v); err == nil {
		t.Fatalf("expected error for array")
	}
}

func TestAnswerValue_Equal(t *testing.T) {
	if !StringValue(" Yes ").Equal(StringValue("yes")) {
		t.Fatalf("strings should compare trimmed and case-insensitive")
	}
	if !NumberValue(0.1 + 0.2).Equal(NumberValue(0.3)) {
		t.Fatalf("numbers should compare with tolerance")
	}
	if StringValue("1").Equal(NumberValue(1)) {
		t.Fatalf("different kinds must not be equal")
	}
	if BoolValue(true).Equal(BoolValue(false)) {
		t.Fatalf("true != false")
	}
}

func TestAnswerValue_ScanRoundTrip(t *testing.T) {
	src := NumberValue(3)
	dv, err := src.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var dst AnswerValue
	if err := dst.Scan([]byte(dv.(string))); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !dst.Equal(src) {
		t.Fatalf("want=%s got=%s", src, dst)
	}
}
