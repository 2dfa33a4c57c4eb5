package handler

import (
	"testing"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/model"
	"classroom-backend/internal/service"
)

func newRowsApp(fs *fakeStore) *fiber.App {
	h := NewRowsHandler(fs, service.NewAccessService(fs))
	app := newTestApp()
	app.Use(withUser)
	app.Get("/api/rows/:table", h.Select)
	return app
}

func TestRows_Select(t *testing.T) {
	fs := newFakeStore()
	fs.addLesson("l1", "teacher",
		model.Slide{ID: "s0", Title: "intro"},
		model.Slide{ID: "s1", Title: "quiz"},
	)
	app := newRowsApp(fs)

	r := call(t, app, "GET", "/api/rows/slides?column=presentation_id&value=l1&order=position", "teacher", nil)
	if r.status != fiber.StatusOK {
		t.Fatalf("slides: status=%d body=%s", r.status, r.body)
	}
	var slides []map[string]any
	r.decode(t, &slides)
	if len(slides) != 2 || slides[0]["id"] != "s0" {
		t.Fatalf("slides: %s", r.body)
	}
	if fs.lastQuery.OrderBy != "position" || fs.lastQuery.Single {
		t.Fatalf("query: %+v", fs.lastQuery)
	}

	r = call(t, app, "GET", "/api/rows/slides?column=title&value=intro", "teacher", nil)
	if r.status != fiber.StatusBadRequest {
		t.Fatalf("unfilterable column: want=400 got=%d", r.status)
	}

	r = call(t, app, "GET", "/api/rows/grades?column=id&value=x", "teacher", nil)
	if r.status != fiber.StatusBadRequest {
		t.Fatalf("unknown table: want=400 got=%d", r.status)
	}

	r = call(t, app, "GET", "/api/rows/users?column=id&value=teacher", "teacher", nil)
	if r.status != fiber.StatusForbidden {
		t.Fatalf("users: want=403 got=%d", r.status)
	}
}

func TestRows_UserSettingsScopedToCaller(t *testing.T) {
	fs := newFakeStore()
	fs.settings["other"] = model.UserSettings{UserID: "other", OpenAIAPIKey: "sk-other-secret-key"}
	app := newRowsApp(fs)

	r := call(t, app, "GET", "/api/rows/user_settings?column=user_id&value=other&single=true", "me", nil)
	if r.status != fiber.StatusOK {
		t.Fatalf("settings: status=%d body=%s", r.status, r.body)
	}
	if fs.lastQuery.Value != "me" || fs.lastQuery.Column != "user_id" {
		t.Fatalf("query should be forced to caller: %+v", fs.lastQuery)
	}
	if string(r.body) != "null" {
		t.Fatalf("single with no row: want=null got=%s", r.body)
	}

	r = call(t, app, "GET", "/api/rows/user_settings?single=true", "other", nil)
	var got map[string]any
	r.decode(t, &got)
	if got["user_id"] != "other" || got["openai_api_key"] != "sk-...-key" {
		t.Fatalf("own settings: %s", r.body)
	}
}

func TestRows_AnswersAndParticipantsAreSessionScoped(t *testing.T) {
	fs := newFakeStore()
	fs.addLesson("l1", "teacher")
	fs.sessions["ses-1"] = &model.PresentationSession{ID: "ses-1", PresentationID: "l1", HostID: "teacher"}
	fs.participants["ses-1/ada"] = &model.SessionParticipant{ID: "p1", SessionID: "ses-1", UserID: "ada"}
	app := newRowsApp(fs)

	cases := []struct {
		name string
		path string
		user string
		want int
	}{
		{"host reads session answers", "/api/rows/student_answers?column=session_id&value=ses-1", "teacher", fiber.StatusOK},
		{"student reads session answers", "/api/rows/student_answers?column=session_id&value=ses-1", "ada", fiber.StatusForbidden},
		{"student reads own answers", "/api/rows/student_answers?column=student_id&value=ada", "ada", fiber.StatusOK},
		{"student reads another student", "/api/rows/student_answers?column=student_id&value=bob", "ada", fiber.StatusForbidden},
		{"owner reads lesson answers", "/api/rows/student_answers?column=presentation_id&value=l1", "teacher", fiber.StatusOK},
		{"answers by id", "/api/rows/student_answers?column=id&value=a1", "teacher", fiber.StatusForbidden},
		{"member reads roster", "/api/rows/session_participants?column=session_id&value=ses-1", "ada", fiber.StatusOK},
		{"outsider reads roster", "/api/rows/session_participants?column=session_id&value=ses-1", "bob", fiber.StatusForbidden},
		{"own participations", "/api/rows/session_participants?column=user_id&value=bob&order=joined_at", "bob", fiber.StatusOK},
		{"unknown session", "/api/rows/session_participants?column=session_id&value=nope", "ada", fiber.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := call(t, app, "GET", tc.path, tc.user, nil)
			if r.status != tc.want {
				t.Fatalf("status: want=%d got=%d body=%s", tc.want, r.status, r.body)
			}
		})
	}
}
