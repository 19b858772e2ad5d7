package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/receipt-splitter/internal/metrics"
	"github.com/zombor/receipt-splitter/internal/scanning"
	"github.com/zombor/receipt-splitter/internal/session"
	"github.com/zombor/receipt-splitter/pkg/logging"
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

	fs := ff.NewFlagSet("receipt-splitter")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		scannerType   = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'ollama' or 'none'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		cachePath     = fs.StringLong("cache", "", "Scan cache file path (empty disables the cache)")
		ownerName     = fs.StringLong("owner-name", "Me", "Display name of the person running the split")
		sessionTTL    = fs.DurationLong("session-ttl", 2*time.Hour, "Remove sessions idle for this long (0 keeps them forever)")
		sweepInterval = fs.DurationLong("sweep-interval", time.Minute, "How often idle sessions are swept")
		dropInvalid   = fs.BoolLong("drop-invalid-lines", "Drop receipt lines with invalid prices instead of rejecting the receipt")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		scanBuckets   = fs.StringLong("scan-buckets", "", "Comma separated scan duration histogram buckets in seconds (empty uses the defaults)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SPLITTER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logging.Setup(*logLevel)

	// Initialize scanner based on type
	scanner, err := newScanner(*scannerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
		os.Exit(1)
	}

	if scanner != nil && *cachePath != "" {
		slog.Info("Initializing scan cache...", "path", *cachePath)
		cache, err := scanning.NewBoltCache(*cachePath)
		if err != nil {
			slog.Error("Failed to initialize scan cache", "error", err)
			os.Exit(1)
		}
		scanner = scanning.NewCachedScanner(scanner, cache)
	}
	if scanner != nil {
		defer scanner.Close()
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	buckets, err := parseBuckets(*scanBuckets)
	if err != nil {
		slog.Error("Invalid scan buckets", "value", *scanBuckets, "error", err)
		os.Exit(1)
	}
	recorder := metrics.New(metrics.WithRegistry(registry), metrics.WithHistogramBuckets(buckets))

	// Initialize sessions
	manager := session.NewManager(scanner, session.Config{
		OwnerName:        *ownerName,
		DropInvalidLines: *dropInvalid,
		Metrics:          recorder,
	}, *sessionTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go manager.Run(ctx, *sweepInterval)

	// Initialize server
	server := session.NewServer(manager, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpServer := server.HTTPServer(fmt.Sprintf(":%d", *port))

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", httpServer.Addr), "version", version)

	// Wait for interrupt signal
	<-ctx.Done()

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down server", "error", err)
	}
}

// parseBuckets parses a comma separated list of increasing bucket bounds.
// An empty value returns nil.
func parseBuckets(value string) ([]float64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	parts := strings.Split(value, ",")
	buckets := make([]float64, 0, len(parts))
	for _, part := range parts {
		bound, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing bucket %q: %w", part, err)
		}
		if bound <= 0 {
			return nil, fmt.Errorf("bucket %v must be positive", bound)
		}
		if n := len(buckets); n > 0 && bound <= buckets[n-1] {
			return nil, fmt.Errorf("buckets must be increasing, got %v after %v", bound, buckets[n-1])
		}
		buckets = append(buckets, bound)
	}
	return buckets, nil
}

// newScanner builds the configured scanner. "none" returns a nil scanner;
// sessions then only accept typed-in lines.
func newScanner(scannerType, geminiKey, geminiModel, ollamaURL, ollamaModel string) (scanning.Scanner, error) {
	switch scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini scanner...", "model", geminiModel)
		return scanning.NewGemini(apiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", ollamaURL, "model", ollamaModel)
		return scanning.NewOllama(ollamaURL, ollamaModel)
	case "none":
		slog.Info("Receipt scanning disabled; only typed-in lines are accepted")
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid scanner type %q, valid: gemini, ollama or none", scannerType)
	}
}
