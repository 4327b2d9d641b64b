package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/eringen/gitcms"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "role":
		err = runRole(os.Args[2:])
	case "posts":
		err = runPosts(os.Args[2:])
	case "version":
		fmt.Printf("gitcms %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gitcms - editor server for a Git-backed blog

Usage:
  gitcms <command> [arguments]

Commands:
  serve                  Start the editor server
  role set <id> <role>   Store the role of an identity user
  role get <id>          Print the role of an identity user
  role delete <id>       Remove the role of an identity user
  role list              List every stored role
  posts list             List the posts of the repository
  version                Print the gitcms version
  help                   Show this help message

Configuration is read from the environment, or from the YAML file named
by GITCMS_CONFIG.`)
}

// newLogger builds a colored console logger in development and a JSON
// logger otherwise.
func newLogger(cfg gitcms.Config) *slog.Logger {
	if cfg.IsDevelopment() {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func runServe() error {
	cfg, err := gitcms.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	app := gitcms.New(cfg, gitcms.WithLogger(logger))
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- app.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Echo.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errc
}
