// Command classroom is the terminal client: sign in, join a session as a
// student, or present a lesson as a teacher.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"classroom-backend/internal/client"
	"classroom-backend/internal/logger"
)

const usage = `usage: classroom [-server URL] [-debug] <command> [args]

commands:
  login              sign in (joins a saved session code afterwards)
  register           create an account
  logout             sign out
  whoami             show the signed-in user
  lessons            list your lessons
  join <code|link>   join a live session as a student
  present <lesson>   start and control a session for one of your lessons
`

// app 명령 공통 의존성
type app struct {
	client *client.Client
	auth   *client.AuthState
	log    *logger.Logger
	out    *os.File
}

func main() {
	server := flag.String("server", envOr("CLASSROOM_SERVER", "http://localhost:8080"), "API base URL")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log := logger.Nop()
	if *debug {
		l, err := logger.New(logger.Options{Mode: "development"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
		log = l
	}
	defer log.Sync()

	tokens, err := client.DefaultFileTokenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "token store: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*server, client.WithLogger(log))
	defer c.Close()
	a := &app{
		client: c,
		auth:   client.NewAuthState(c, tokens, log),
		log:    log,
		out:    os.Stdout,
	}
	defer a.auth.Close()

	if err := a.auth.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "could not reach %s: %v\n", *server, err)
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := a.run(ctx, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "classroom %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami()
	case "lessons":
		return a.lessons(ctx)
	case "join":
		return a.join(ctx, args)
	case "present":
		return a.present(ctx, args)
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
