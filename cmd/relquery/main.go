package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relquery/internal/app"
	"relquery/internal/config"

	"github.com/spf13/pflag"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		slog.Error("relquery error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("relquery", pflag.ContinueOnError)
	config.Flags(fs)
	fs.Bool("version", false, "Print version and exit")
	fs.StringP("request", "r", "@-", "Path to a JSON find request (use @- for stdin)")
	fs.Bool("compile-only", false, "Print the primary SQL statement and arguments without running it")
	fs.Bool("pretty", false, "Indent JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVersion, _ := fs.GetBool("version"); showVersion {
		_, err := fmt.Fprintf(stdout, "relquery %s (%s)\n", Version, Commit)
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	requestPath, _ := fs.GetString("request")
	if isStdin(requestPath) && cfg.UsesStdin() {
		return errors.New("the request and a configuration secret both read from stdin; pass --request a file path")
	}
	body, err := readRequest(requestPath, stdin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, loggerProvider, err := app.InitLogger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	compileOnly, _ := fs.GetBool("compile-only")
	a, err := app.New(cfg, logger, app.Options{Offline: compileOnly})
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	if err := a.Init(ctx); err != nil {
		return err
	}

	var result any
	if compileOnly {
		q, err := a.Compile(body)
		if err != nil {
			return err
		}
		result = compiledOutput{SQL: q.SQL, Args: q.Args, Columns: q.Columns}
	} else {
		rows, err := a.Execute(ctx, body)
		if err != nil {
			return err
		}
		result = rows
	}

	pretty, _ := fs.GetBool("pretty")
	return writeJSON(stdout, result, pretty)
}

type compiledOutput struct {
	SQL     string   `json:"sql"`
	Args    []any    `json:"args"`
	Columns []string `json:"columns"`
}

func isStdin(path string) bool {
	path = strings.TrimSpace(path)
	return path == "@-" || path == "-"
}

func readRequest(path string, stdin io.Reader) ([]byte, error) {
	var data []byte
	var err error
	if isStdin(path) {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("request is empty")
	}
	return data, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
