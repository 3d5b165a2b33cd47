package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/billsplit/internal/billsplit"
	"github.com/zombor/billsplit/internal/logging"
	"github.com/zombor/billsplit/internal/money"
	"github.com/zombor/billsplit/internal/scanning"
	"github.com/zombor/billsplit/internal/split"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	flags := ff.NewFlagSet("billsplit")
	var (
		port         = flags.IntLong("port", 8080, "HTTP server port")
		dbPath       = flags.StringLong("db", "billsplit.db", "Database file path")
		storagePath  = flags.StringLong("storage", "./receipts", "Storage directory path")
		splitterType = flags.StringLong("splitter", "gemini", "Splitter type: 'gemini' or 'ollama'")
		geminiKey    = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = flags.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL    = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = flags.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		authUser     = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		currency     = flags.StringLong("currency", money.DefaultCurrency, "ISO 4217 code used to display amounts")
		tolerance    = flags.Float64Long("tolerance", split.DefaultTolerance, "Largest accepted difference between owed amounts and the receipt total")
		logLevel     = flags.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion  = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("BILLSPLIT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logging.Setup(*logLevel)

	slog.Info("Initializing database...", "path", *dbPath)
	db, err := billsplit.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	var splitter scanning.Splitter
	switch *splitterType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini splitter...", "model", *geminiModel)
		splitter, err = scanning.NewGemini(ctx, apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama splitter...", "url", *ollamaURL, "model", *ollamaModel)
		splitter, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid splitter type", "type", *splitterType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer splitter.Close()

	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := billsplit.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := billsplit.NewService(db, splitter, store, *tolerance)
	server := billsplit.NewServer(service, billsplit.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}, *currency)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
