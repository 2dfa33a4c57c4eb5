package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"classroom-backend/internal/controls"
	"classroom-backend/internal/livesync"
	"classroom-backend/internal/model"
)

const presentHelp = `commands:
  n | p | goto <slide>       move the class
  sync on|off                students follow your slide
  pace on|off [1,2,...]      limit free navigation to listed slides
  pause | resume             freeze student navigation
  anon on|off                hide student names in the grid
  grid [last_name|first_name|joined_at]
  end                        end the session
  q                          leave the console (session keeps running)
`

// presenter 교사 콘솔 상태
type presenter struct {
	a       *app
	id      string
	slides  int
	session *livesync.Row[model.PresentationSession]
	answers *livesync.Collection[model.StudentAnswer]
	seen    int
}

func (a *app) present(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("present", flag.ContinueOnError)
	resume := fs.String("session", "", "attach to a running session instead of starting one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSignIn(); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: classroom present [-session ID] <lesson id>")
	}

	lesson, err := a.client.GetLesson(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if len(lesson.Slides) == 0 {
		return errors.New("lesson has no slides")
	}

	sessionID := *resume
	if sessionID == "" {
		started, err := a.client.StartSession(ctx, lesson.ID)
		if err != nil {
			return err
		}
		sessionID = started.Session.ID
		fmt.Fprintf(a.out, "session started: code %s\njoin link: %s\n\n", started.Session.JoinCode, started.JoinLink)
	}

	changed := make(chan struct{}, 1)
	notify := livesync.WithListener(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	session, err := livesync.NewRow[model.PresentationSession](a.client, model.TablePresentationSessions, "id", notify, livesync.WithLogger(a.log))
	if err != nil {
		return err
	}
	defer session.Close()
	answers, err := livesync.NewCollection[model.StudentAnswer](a.client, model.TableStudentAnswers, "session_id", "created_at", false, notify, livesync.WithLogger(a.log))
	if err != nil {
		return err
	}
	defer answers.Close()
	if err := session.SetValue(ctx, sessionID); err != nil {
		return err
	}
	if err := answers.SetValue(ctx, sessionID); err != nil {
		return err
	}

	p := &presenter{a: a, id: sessionID, slides: len(lesson.Slides), session: session, answers: answers, seen: -1}
	fmt.Fprint(a.out, presentHelp)

	lines := readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if ended := p.status(); ended {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := p.command(ctx, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s\n", userMessage(err))
			}
			if quit {
				return nil
			}
		}
	}
}

// status 세션 상태 한 줄과 새 응답 수. 세션이 끝났으면 true.
func (p *presenter) status() bool {
	st := p.session.Snapshot()
	if st.Data == nil {
		return false
	}
	s := st.Data
	if !s.Active() {
		fmt.Fprintln(p.a.out, "session ended")
		return true
	}
	n := len(p.answers.Snapshot().Data)
	if p.seen >= 0 && n > p.seen {
		fmt.Fprintf(p.a.out, "+%d answers (grid to view)\n", n-p.seen)
	}
	if !p.answers.Snapshot().Loading {
		p.seen = n
	}
	fmt.Fprintf(p.a.out, "[slide %d/%d] %s\n", s.CurrentSlide+1, p.slides, modeLine(s))
	return false
}

func modeLine(s *model.PresentationSession) string {
	var parts []string
	if s.SyncEnabled {
		parts = append(parts, "sync")
	}
	if s.StudentPacingEnabled {
		open := make([]string, len(s.AllowedSlides))
		for i, idx := range s.AllowedSlides {
			open[i] = strconv.Itoa(idx + 1)
		}
		parts = append(parts, "pacing("+strings.Join(open, ",")+")")
	}
	if s.IsPaused {
		parts = append(parts, "paused")
	}
	if s.AnonymousMode {
		parts = append(parts, "anonymous")
	}
	if len(parts) == 0 {
		return "free navigation"
	}
	return strings.Join(parts, " ")
}

func (p *presenter) current() int {
	if s := p.session.Snapshot().Data; s != nil {
		return s.CurrentSlide
	}
	return 0
}

func (p *presenter) command(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	c := p.a.client
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "q", "quit":
		return true, nil
	case "help", "?":
		fmt.Fprint(p.a.out, presentHelp)
		return false, nil
	case "n", "next":
		_, err = c.GoToSlide(ctx, p.id, p.current()+1)
	case "p", "prev":
		_, err = c.GoToSlide(ctx, p.id, p.current()-1)
	case "goto":
		var n int
		if n, err = strconv.Atoi(arg); err != nil {
			return false, fmt.Errorf("goto needs a slide number")
		}
		_, err = c.GoToSlide(ctx, p.id, n-1)
	case "sync":
		var on bool
		if on, err = parseSwitch(arg); err == nil {
			_, err = c.SetSync(ctx, p.id, on)
		}
	case "anon":
		var on bool
		if on, err = parseSwitch(arg); err == nil {
			_, err = c.SetAnonymous(ctx, p.id, on)
		}
	case "pause", "resume":
		_, err = c.SetPaused(ctx, p.id, fields[0] == "pause")
	case "pace":
		var on bool
		if on, err = parseSwitch(arg); err != nil {
			return false, err
		}
		var allowed []int
		if len(fields) > 2 {
			if allowed, err = parseSlideList(fields[2], p.slides); err != nil {
				return false, err
			}
		}
		_, err = c.SetPacing(ctx, p.id, on, allowed)
	case "grid":
		if _, err = controls.ParseSortKey(arg); err != nil {
			return false, err
		}
		grid, gerr := c.Progress(ctx, p.id, arg)
		if gerr != nil {
			return false, gerr
		}
		renderGrid(p.a.out, grid)
	case "end":
		_, err = c.EndSession(ctx, p.id)
	default:
		err = fmt.Errorf("unknown command %q (help for a list)", fields[0])
	}
	return false, err
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// parseSlideList "1,3,4" -> [0 2 3]
func parseSlideList(s string, count int) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > count {
			return nil, fmt.Errorf("slide %q is not between 1 and %d", part, count)
		}
		out = append(out, n-1)
	}
	if len(out) == 0 {
		return nil, errors.New("no slides listed")
	}
	return out, nil
}
