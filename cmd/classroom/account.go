package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

var stdin = bufio.NewReader(os.Stdin)

// prompt 값이 비어 있으면 한 줄 읽는다
func prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("CLASSROOM_PASSWORD"), "password (or CLASSROOM_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := prompt("email", *email)
	if err != nil {
		return err
	}
	p, err := prompt("password", *password)
	if err != nil {
		return err
	}
	u, err := a.auth.Login(ctx, e, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s\n", u.DisplayName())
	return a.resumePending(ctx)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("CLASSROOM_PASSWORD"), "password, at least 8 characters")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := prompt("email", *email)
	if err != nil {
		return err
	}
	p, err := prompt("password", *password)
	if err != nil {
		return err
	}
	u, err := a.auth.Register(ctx, e, p, *first, *last)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "account created, signed in as %s\n", u.DisplayName())
	return a.resumePending(ctx)
}

// resumePending 로그인 전에 받아 둔 참가 코드가 있으면 바로 참가
func (a *app) resumePending(ctx context.Context) error {
	s, err := a.newJoinSession()
	if err != nil {
		return err
	}
	defer s.flow.Close()

	attempted, err := s.flow.Resume(ctx)
	if err != nil || !attempted {
		return err
	}
	nav, ok := s.flow.Result()
	if !ok {
		return errors.New("join did not complete")
	}
	return a.follow(ctx, nav)
}

func (a *app) logout(ctx context.Context) error {
	if !a.auth.Authenticated() {
		fmt.Fprintln(a.out, "not signed in")
		return nil
	}
	if err := a.auth.Logout(ctx); err != nil {
		a.log.Warn("server logout failed", "error", err)
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func (a *app) whoami() error {
	u := a.auth.User()
	if u == nil {
		fmt.Fprintln(a.out, "not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s> (%s)\n", u.DisplayName(), u.Email, u.Provider)
	return nil
}

func (a *app) lessons(ctx context.Context) error {
	if err := a.requireSignIn(); err != nil {
		return err
	}
	list, err := a.client.ListLessons(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no lessons yet")
		return nil
	}
	for _, l := range list {
		fmt.Fprintf(a.out, "%s  %s\n", l.ID, l.Title)
	}
	return nil
}

func (a *app) requireSignIn() error {
	if !a.auth.Authenticated() {
		return errors.New("not signed in, run `classroom login` first")
	}
	return nil
}
