package store

import (
	"strings"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

func TestGenerateJoinCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateJoinCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != model.JoinCodeLength {
			t.Fatalf("length: want=%d got=%d (%s)", model.JoinCodeLength, len(code), code)
		}
		for _, r := range code {
			if !strings.ContainsRune(model.JoinCodeAlphabet, r) {
				t.Fatalf("code %s contains %q outside the alphabet", code, r)
			}
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Fatalf("too many collisions: %d unique of 200", len(seen))
	}
}

func TestQuery_Validate(t *testing.T) {
	cases := []struct {
		name string
		q    Query
		kind apperr.Kind
	}{
		{"ok", Query{Table: model.TableSlides, Column: "presentation_id", Value: "p", OrderBy: "position"}, ""},
		{"unknown table", Query{Table: "grades", Column: "id", Value: "x"}, apperr.KindInvalidInput},
		{"bad column", Query{Table: model.TableSlides, Column: "blocks", Value: "x"}, apperr.KindInvalidInput},
		{"bad order", Query{Table: model.TableSlides, Column: "id", Value: "x", OrderBy: "title"}, apperr.KindInvalidInput},
		{"empty value", Query{Table: model.TableSlides, Column: "id"}, apperr.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if got := apperr.KindOf(err); got != tc.kind {
				t.Fatalf("kind: want=%q got=%q (%v)", tc.kind, got, err)
			}
		})
	}
}

func TestSessionPatch_ColumnsAndApply(t *testing.T) {
	paused := true
	slide := 3
	allowed := []int{1, 3}
	p := SessionPatch{IsPaused: &paused, CurrentSlide: &slide, AllowedSlides: &allowed}

	cols := p.columns()
	if len(cols) != 3 {
		t.Fatalf("columns: want=3 got=%d (%v)", len(cols), cols)
	}
	if _, ok := cols["sync_enabled"]; ok {
		t.Fatalf("unset field leaked into update")
	}

	s := model.PresentationSession{SyncEnabled: true}
	p.apply(&s)
	if !s.IsPaused || s.CurrentSlide != 3 || len(s.AllowedSlides) != 2 || !s.SyncEnabled {
		t.Fatalf("unexpected session after apply: %+v", s)
	}
}

func TestWrap(t *testing.T) {
	if k := apperr.KindOf(wrap("x", gorm.ErrRecordNotFound)); k != apperr.KindNotFound {
		t.Fatalf("record not found: got %s", k)
	}
	if k := apperr.KindOf(wrap("x", gorm.ErrDuplicatedKey)); k != apperr.KindConflict {
		t.Fatalf("duplicate: got %s", k)
	}
	if wrap("x", ErrSessionEnded) != ErrSessionEnded {
		t.Fatalf("classified errors must pass through")
	}
}

func TestCheckID(t *testing.T) {
	if err := checkID("lesson", "not-a-uuid"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	if err := checkID("lesson", "7c9e6679-7425-40de-944b-e07fc1f90ae7"); err != nil {
		t.Fatalf("valid uuid: %v", err)
	}
}

// dryRunDB SQL만 만들고 실행하지 않는 postgres 핸들
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=test dbname=test sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func TestSettingsUpsert_UpdatesSettingColumns(t *testing.T) {
	db := dryRunDB(t)
	stmt := db.Clauses(settingsUpsert).Create(&model.UserSettings{UserID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", TTSVoice: "nova"}).Statement
	sql := stmt.SQL.String()

	for _, want := range []string{
		`ON CONFLICT ("user_id") DO UPDATE SET`,
		`"tts_voice"="excluded"."tts_voice"`,
		`"openai_api_key"="excluded"."openai_api_key"`,
		`"updated_at"="excluded"."updated_at"`,
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("upsert sql missing %s:\n%s", want, sql)
		}
	}
	if strings.Contains(sql, `"user_id"="excluded"`) {
		t.Fatalf("primary key must not be reassigned:\n%s", sql)
	}
}
