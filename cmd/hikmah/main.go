// Command hikmah is an interactive scholar assistant: streaming chat with
// optional search grounding, live voice conversation, image editing, and
// persistent session history.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hikmah-ai/hikmah/internal/dotenv"
	"github.com/hikmah-ai/hikmah/pkg/audio"
	"github.com/hikmah-ai/hikmah/pkg/chat"
	"github.com/hikmah-ai/hikmah/pkg/config"
	"github.com/hikmah-ai/hikmah/pkg/live"
	"github.com/hikmah-ai/hikmah/pkg/storage"
)

type cliOptions struct {
	Voice    string
	Language string
	Style    string
	LogLevel string
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("hikmah", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.Voice, "voice", "", "live voice name (overrides saved preference)")
	fs.StringVar(&opts.Language, "language", "", "conversation language (overrides saved preference)")
	fs.StringVar(&opts.Style, "style", "", "response style: conversational|concise|detailed")
	fs.StringVar(&opts.LogLevel, "log-level", "warn", "log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	switch strings.ToLower(opts.Style) {
	case "", "conversational", "concise", "detailed":
	default:
		return cliOptions{}, fmt.Errorf("invalid style %q: expected conversational|concise|detailed", opts.Style)
	}
	return opts, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func run(ctx context.Context, opts cliOptions) error {
	logger := newLogger(opts.LogLevel)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	prefs, err := config.LoadPreferences(cfg.DataDir)
	if err != nil {
		return err
	}
	applyOverrides(&prefs, opts)

	local, err := storage.NewLocalStore(storage.LocalOptions{
		Dir:    filepath.Join(cfg.DataDir, "sessions"),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer local.Close()

	var remote storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		remote = pg
	}
	store := storage.NewRouter(local, remote, logger)

	orch, err := chat.NewOrchestrator(ctx, cfg.APIKey, chat.Models{
		Chat:   cfg.Models.Chat,
		Search: cfg.Models.Search,
		Image:  cfg.Models.Image,
	}, logger)
	if err != nil {
		return err
	}

	metrics := live.NewMetrics("")
	if addr := os.Getenv("HIKMAH_METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener stopped", "err", err)
			}
		}()
	}
	manager := live.NewManager(live.ManagerConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Models.Live,
		Instruction: chat.SystemInstruction,
	}, func() live.CapturePipeline {
		return audio.NewCapture(logger)
	}, func() (live.Sink, error) {
		return audio.NewSpeaker()
	}, metrics, logger)

	app := newApp(appDeps{
		Conversation: chat.NewConversation(orch, logger),
		Store:        store,
		Manager:      manager,
		DataDir:      cfg.DataDir,
		Prefs:        prefs,
		Logger:       logger,
	})
	return app.run(ctx, os.Stdin, os.Stdout, os.Stderr)
}

func applyOverrides(prefs *config.Preferences, opts cliOptions) {
	if opts.Voice != "" {
		prefs.Voice = opts.Voice
	}
	if opts.Language != "" {
		prefs.Language = opts.Language
	}
	if opts.Style != "" {
		prefs.Style = parseStyle(opts.Style)
	}
}

func main() {
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "hikmah: %v\n", err)
		os.Exit(1)
	}

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hikmah: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "hikmah: %v\n", err)
		os.Exit(1)
	}
}
