package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/controls"
	"classroom-backend/internal/join"
	"classroom-backend/internal/livesync"
	"classroom-backend/internal/model"
)

// joinSession 참가 흐름과 터미널 어댑터
type joinSession struct {
	flow   *join.Flow
	signIn chan struct{}
}

type termNotifier struct{}

func (termNotifier) Notify(level join.Level, message string) {
	if level == join.LevelError {
		fmt.Fprintf(os.Stderr, "✗ %s\n", message)
		return
	}
	fmt.Fprintf(os.Stderr, "ℹ %s\n", message)
}

// termNavigator 세션 화면 이동은 Result로 받으므로 기록만 한다
type termNavigator struct {
	a *app
}

func (n termNavigator) Navigate(path string, state join.NavigationState) {
	n.a.log.Debug("navigate", "path", path, "session_id", state.SessionID)
}

type termAuth struct {
	a      *app
	signIn chan struct{}
}

func (t termAuth) Authenticated() bool { return t.a.auth.Authenticated() }

func (t termAuth) RequestSignIn() {
	select {
	case t.signIn <- struct{}{}:
	default:
	}
}

func (a *app) newJoinSession() (*joinSession, error) {
	pending, err := join.DefaultFilePending()
	if err != nil {
		return nil, err
	}
	signIn := make(chan struct{}, 1)
	flow := join.New(a.client, termNavigator{a: a}, termNotifier{}, termAuth{a: a, signIn: signIn}, pending,
		join.WithLogger(a.log))
	return &joinSession{flow: flow, signIn: signIn}, nil
}

func (a *app) join(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: classroom join <code|link>")
	}
	code, err := join.CodeFromLink(args[0])
	if err != nil {
		return err
	}

	s, err := a.newJoinSession()
	if err != nil {
		return err
	}
	defer s.flow.Close()

	if err := s.flow.HandleCode(ctx, code); err != nil {
		return err
	}

	if s.flow.State() == join.StateAwaitingSignIn {
		select {
		case <-s.signIn:
		case <-time.After(join.DefaultSignInDelay + time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		fmt.Fprintln(a.out, "your code is saved, run `classroom login` to continue")
		return nil
	}

	nav, ok := s.flow.Result()
	if !ok {
		return s.flow.Err()
	}
	return a.follow(ctx, nav)
}

// liveView 학생 화면 상태
type liveView struct {
	a       *app
	nav     join.NavigationState
	session *livesync.Row[model.PresentationSession]
	slides  *livesync.Collection[model.Slide]
	mine    *livesync.Collection[model.SessionParticipant]
	answers map[string]model.AnswerValue
	shown   int
}

// follow 세션이 끝날 때까지 교사 화면을 따라간다
func (a *app) follow(ctx context.Context, nav join.NavigationState) error {
	me := a.auth.User()
	if me == nil {
		return a.requireSignIn()
	}

	changed := make(chan struct{}, 1)
	notify := livesync.WithListener(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	logOpt := livesync.WithLogger(a.log)

	session, err := livesync.NewRow[model.PresentationSession](a.client, model.TablePresentationSessions, "id", notify, logOpt)
	if err != nil {
		return err
	}
	defer session.Close()
	slides, err := livesync.NewCollection[model.Slide](a.client, model.TableSlides, "presentation_id", "position", false, notify, logOpt)
	if err != nil {
		return err
	}
	defer slides.Close()
	mine, err := livesync.NewCollection[model.SessionParticipant](a.client, model.TableSessionParticipants, "user_id", "joined_at", true, notify, logOpt)
	if err != nil {
		return err
	}
	defer mine.Close()

	if err := session.SetValue(ctx, nav.SessionID); err != nil {
		return err
	}
	if err := slides.SetValue(ctx, nav.PresentationID); err != nil {
		return err
	}
	if err := mine.SetValue(ctx, me.ID); err != nil {
		return err
	}

	v := &liveView{a: a, nav: nav, session: session, slides: slides, mine: mine, answers: map[string]model.AnswerValue{}, shown: -1}
	if list, err := a.client.MyAnswers(ctx, nav.SessionID); err == nil {
		for _, ans := range list {
			v.answers[ans.BlockID] = ans.Value
		}
	}

	fmt.Fprintf(a.out, "joined session %s. commands: n(ext) p(rev) a <block> <answer> say r(edraw) q(uit)\n", nav.JoinCode)

	lines := readLines(ctx)
	beat := time.NewTicker(20 * time.Second)
	defer beat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-beat.C:
			if err := a.client.Heartbeat(ctx, nav.SessionID); err != nil {
				a.log.Debug("heartbeat failed", "error", err)
			}
		case <-changed:
			if done := v.refresh(false); done {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := v.command(ctx, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s\n", userMessage(err))
			}
			if quit {
				return nil
			}
		}
	}
}

func (v *liveView) participant() *model.SessionParticipant {
	for _, p := range v.mine.Snapshot().Data {
		if p.SessionID == v.nav.SessionID {
			return &p
		}
	}
	return nil
}

// refresh 보이는 슬라이드가 바뀌었거나 force면 다시 그린다. 세션이 끝났으면 true.
func (v *liveView) refresh(force bool) bool {
	st := v.session.Snapshot()
	if st.Loading || st.Data == nil {
		if st.Err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s\n", userMessage(st.Err))
		}
		return false
	}
	s := st.Data
	if !s.Active() {
		fmt.Fprintln(v.a.out, "the teacher ended the session")
		return true
	}
	slides := v.slides.Snapshot().Data
	idx := controls.EffectiveSlide(s, v.participant())
	if !force && idx == v.shown {
		return false
	}
	if idx < 0 || idx >= len(slides) {
		return false
	}
	v.shown = idx

	fmt.Fprint(v.a.out, "\033[H\033[2J")
	renderSlide(v.a.out, slides[idx], idx, len(slides), v.answers)
	switch {
	case s.IsPaused:
		fmt.Fprintln(v.a.out, "⏸ paused by the teacher")
	case s.SyncEnabled:
		fmt.Fprintln(v.a.out, "following the teacher")
	}
	return false
}

func (v *liveView) currentSlide() (model.Slide, bool) {
	slides := v.slides.Snapshot().Data
	if v.shown < 0 || v.shown >= len(slides) {
		return model.Slide{}, false
	}
	return slides[v.shown], true
}

func (v *liveView) command(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "q", "quit":
		return true, nil
	case "r", "redraw":
		v.refresh(true)
	case "n", "next", "p", "prev":
		step := 1
		if fields[0] == "p" || fields[0] == "prev" {
			step = -1
		}
		if _, err := v.a.client.Navigate(ctx, v.nav.SessionID, v.shown+step); err != nil {
			return false, err
		}
	case "a", "answer":
		if len(fields) < 3 {
			return false, errors.New("usage: a <block id> <answer>")
		}
		return false, v.answer(ctx, fields[1], strings.Join(fields[2:], " "))
	case "say":
		return false, v.say(ctx)
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
	return false, nil
}

func (v *liveView) answer(ctx context.Context, blockID, raw string) error {
	slide, ok := v.currentSlide()
	if !ok {
		return errors.New("no slide on screen")
	}
	q, ok := slide.BlockList().Find(blockID).(*model.QuestionBlock)
	if !ok {
		return fmt.Errorf("no question %q on this slide", blockID)
	}
	value, err := parseAnswer(q, raw)
	if err != nil {
		return err
	}
	saved, err := v.a.client.SubmitAnswer(ctx, v.nav.SessionID, slide.ID, q.ID, value)
	if err != nil {
		return err
	}
	v.answers[q.ID] = saved.Value
	switch {
	case saved.IsCorrect == nil:
		fmt.Fprintln(v.a.out, "answer saved")
	case *saved.IsCorrect:
		fmt.Fprintln(v.a.out, "✓ correct")
	default:
		fmt.Fprintln(v.a.out, "✗ not quite, try again")
	}
	return nil
}

// say 현재 슬라이드를 읽어 mp3 파일로 저장
func (v *liveView) say(ctx context.Context) error {
	slide, ok := v.currentSlide()
	if !ok {
		return errors.New("no slide on screen")
	}
	audio, err := v.a.client.Speak(ctx, slideText(slide))
	if err != nil {
		return err
	}
	if audio == nil {
		fmt.Fprintln(v.a.out, "text-to-speech is turned off in your settings")
		return nil
	}
	f, err := os.CreateTemp("", "classroom-slide-*.mp3")
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(audio); err != nil {
		return err
	}
	fmt.Fprintf(v.a.out, "audio saved to %s\n", f.Name())
	return nil
}

// readLines 표준 입력 한 줄씩. EOF면 채널을 닫는다.
func readLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			line, err := stdin.ReadString('\n')
			if line != "" {
				select {
				case out <- strings.TrimSpace(line):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// userMessage apperr는 메시지만, 그 외는 원문
func userMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
