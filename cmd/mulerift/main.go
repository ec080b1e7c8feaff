// MuleRift - Fraud-ring detection for transaction ledgers.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/mulerift/internal/api"
	"github.com/opensource-finance/mulerift/internal/archive"
	"github.com/opensource-finance/mulerift/internal/bus"
	"github.com/opensource-finance/mulerift/internal/cache"
	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/engine"
	"github.com/opensource-finance/mulerift/internal/policy"
	"github.com/opensource-finance/mulerift/internal/report"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Exit codes for batch mode.
const (
	exitOK        = 0
	exitInput     = 1
	exitTimeout   = 2
	exitInvariant = 3
)

func main() {
	strict := flag.Bool("strict", false, "reject the whole run on the first malformed ledger row")
	timeout := flag.Duration("timeout", 0, "abort the run after this duration (0 = no deadline)")
	policyFile := flag.String("policies", "", "JSON file of account policies")
	flag.Usage = usage
	flag.Parse()

	// Batch mode owns stdout for the report, so logs go to stderr. Serve
	// mode keeps the same destination for consistency.
	logLevel := slog.LevelInfo
	if os.Getenv("MULERIFT_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg := domain.DefaultConfig()
	applyEnv(cfg)
	if *strict {
		cfg.Strict = true
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *policyFile != "" {
		cfg.PolicyFile = *policyFile
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(exitInput)
	}

	if args[0] == "serve" {
		os.Exit(runServe(cfg))
	}
	os.Exit(runBatch(cfg, args[0]))
}

// runBatch analyzes one ledger file and writes the JSON report to stdout.
func runBatch(cfg *domain.Config, path string) int {
	slog.Info("starting mulerift",
		"version", Version,
		"mode", "batch",
		"ledger", path,
	)

	policies, code := loadPolicies(cfg)
	if code != exitOK {
		return code
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng := engine.New(cfg, policies, nil, nil)
	result, err := eng.AnalyzeFile(ctx, path)
	if err != nil {
		slog.Error("analysis failed", "ledger", path, "error", err)
		return exitCode(err)
	}

	out, err := report.Marshal(result)
	if err != nil {
		slog.Error("failed to encode report", "error", err)
		return exitInvariant
	}
	fmt.Println(string(out))

	slog.Info("analysis complete",
		"ledger", path,
		"flagged_accounts", len(result.SuspiciousAccounts),
		"fraud_rings", len(result.FraudRings),
		"seconds", result.Summary.ProcessingTimeSeconds,
	)
	return exitOK
}

// runServe starts the HTTP API with the configured archive, cache and bus.
func runServe(cfg *domain.Config) int {
	slog.Info("starting mulerift",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"mode", "serve",
	)
	slog.Info("configuration loaded",
		"archive", cfg.Archive.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	policies, code := loadPolicies(cfg)
	if code != exitOK {
		return code
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	arch, err := archive.New(cfg.Archive)
	if err != nil {
		slog.Error("failed to initialize archive", "error", err)
		return exitInput
	}
	if arch != nil {
		defer arch.Close()
	}
	slog.Info("archive initialized", "driver", cfg.Archive.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		return exitInput
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		return exitInput
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	eng := engine.New(cfg, policies, arch, busImpl)
	srv := api.NewServer(cfg.Server, eng, cacheImpl, arch, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(exitInput)
		}
	}()

	slog.Info("mulerift is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("mulerift shutdown complete")
	return exitOK
}

// loadPolicies builds the optional account policy engine.
func loadPolicies(cfg *domain.Config) (*policy.Engine, int) {
	if cfg.PolicyFile == "" {
		return nil, exitOK
	}
	policies, err := policy.NewEngine()
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		return nil, exitInput
	}
	if err := policies.LoadFile(cfg.PolicyFile); err != nil {
		slog.Error("failed to load policies", "file", cfg.PolicyFile, "error", err)
		return nil, exitInput
	}
	slog.Info("policies loaded", "file", cfg.PolicyFile, "count", policies.PolicyCount())
	return policies, exitOK
}

// exitCode maps pipeline errors to the batch exit contract.
func exitCode(err error) int {
	var rowErr *domain.MalformedRowError
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return exitTimeout
	case errors.Is(err, domain.ErrInvariant):
		return exitInvariant
	case errors.As(err, &rowErr), errors.Is(err, domain.ErrInput):
		return exitInput
	default:
		return exitInput
	}
}

// applyEnv overlays MULERIFT_* environment variables on the defaults.
// Several settings accept two names; the first listed wins when both are
// set.
func applyEnv(cfg *domain.Config) {
	if v := os.Getenv("MULERIFT_STRICT"); v == "true" {
		cfg.Strict = true
	}
	if d, ok := envDuration("MULERIFT_TIMEOUT"); ok {
		cfg.Timeout = d
	}
	if v := os.Getenv("MULERIFT_POLICY_FILE"); v != "" {
		cfg.PolicyFile = v
	}

	// Detector thresholds
	if n, ok := envInt("MULERIFT_CYCLE_MIN_LEN", "MULERIFT_CYCLE_MIN_LENGTH"); ok {
		cfg.Cycle.MinLength = n
	}
	if n, ok := envInt("MULERIFT_CYCLE_MAX_LEN", "MULERIFT_CYCLE_MAX_LENGTH"); ok {
		cfg.Cycle.MaxLength = n
	}
	if d, ok := envDuration("MULERIFT_CYCLE_WINDOW"); ok {
		cfg.Cycle.Window = d
	}
	if n, ok := envInt("MULERIFT_FAN_THRESHOLD"); ok {
		cfg.Smurfing.FanThreshold = n
	}
	if d, ok := envDuration("MULERIFT_SMURF_WINDOW", "MULERIFT_FAN_WINDOW"); ok {
		cfg.Smurfing.Window = d
	}
	if v := os.Getenv("MULERIFT_AMOUNT_CEILING"); v != "" {
		if ceiling, err := decimal.NewFromString(v); err == nil {
			cfg.Smurfing.AmountCeiling = ceiling
		} else {
			slog.Warn("ignoring invalid env value", "key", "MULERIFT_AMOUNT_CEILING", "value", v)
		}
	}
	if f, ok := envFloat("MULERIFT_PASSTHROUGH_TOL", "MULERIFT_SHELL_TOLERANCE"); ok {
		cfg.Shell.PassThroughTolerance = f
	}
	if d, ok := envDuration("MULERIFT_DWELL_MAX", "MULERIFT_SHELL_MAX_DWELL"); ok {
		cfg.Shell.MaxDwell = d
	}

	// Scoring
	if f, ok := envFloat("MULERIFT_SCORE_THRESHOLD", "MULERIFT_REPORTING_THRESHOLD"); ok {
		cfg.Scoring.ReportingThreshold = f
	}
	if f, ok := envFloat("MULERIFT_PATTERN_FLOOR"); ok {
		cfg.Scoring.PatternFloor = f
	}
	for _, pattern := range []string{domain.PatternCycle, domain.PatternSmurfing, domain.PatternShell} {
		if f, ok := envFloat("MULERIFT_WEIGHT_" + strings.ToUpper(pattern)); ok {
			cfg.Scoring.Weights[pattern] = f
		}
	}
	if f, ok := envFloat("MULERIFT_RING_ALERT_FLOOR"); ok {
		cfg.Rings.AlertFloor = f
	}

	// Server
	if v := os.Getenv("MULERIFT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if n, ok := envInt("MULERIFT_PORT"); ok {
		cfg.Server.Port = n
	}

	// Archive
	if v := os.Getenv("MULERIFT_ARCHIVE_DRIVER"); v != "" {
		cfg.Archive.Driver = v
	}
	if v, ok := envString("MULERIFT_ARCHIVE_PATH", "MULERIFT_SQLITE_PATH"); ok {
		cfg.Archive.SQLitePath = v
	}
	if v := os.Getenv("MULERIFT_POSTGRES_HOST"); v != "" {
		cfg.Archive.PostgresHost = v
	}
	if n, ok := envInt("MULERIFT_POSTGRES_PORT"); ok {
		cfg.Archive.PostgresPort = n
	}
	if v := os.Getenv("MULERIFT_POSTGRES_USER"); v != "" {
		cfg.Archive.PostgresUser = v
	}
	if v := os.Getenv("MULERIFT_POSTGRES_PASSWORD"); v != "" {
		cfg.Archive.PostgresPassword = v
	}
	if v := os.Getenv("MULERIFT_POSTGRES_DB"); v != "" {
		cfg.Archive.PostgresDB = v
	}
	if v := os.Getenv("MULERIFT_POSTGRES_SSLMODE"); v != "" {
		cfg.Archive.PostgresSSLMode = v
	}

	// Cache
	if v, ok := envString("MULERIFT_CACHE", "MULERIFT_CACHE_TYPE"); ok {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("MULERIFT_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("MULERIFT_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if n, ok := envInt("MULERIFT_REDIS_DB"); ok {
		cfg.Cache.RedisDB = n
	}
	if v := os.Getenv("MULERIFT_CACHE_TWO_PHASE"); v == "true" {
		cfg.Cache.EnableTwoPhase = true
	}

	// Event bus
	if v, ok := envString("MULERIFT_BUS", "MULERIFT_BUS_TYPE"); ok {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("MULERIFT_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("MULERIFT_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}
}

// envString returns the first key set to a non-empty value.
func envString(keys ...string) (string, bool) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
	}
	return "", false
}

func envInt(keys ...string) (int, bool) {
	v, ok := envString(keys...)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid env value", "keys", keys, "value", v)
		return 0, false
	}
	return n, true
}

func envFloat(keys ...string) (float64, bool) {
	v, ok := envString(keys...)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid env value", "keys", keys, "value", v)
		return 0, false
	}
	return f, true
}

func envDuration(keys ...string) (time.Duration, bool) {
	v, ok := envString(keys...)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid env value", "keys", keys, "value", v)
		return 0, false
	}
	return d, true
}

func usage() {
	fmt.Fprintf(os.Stderr, `MuleRift %s - fraud-ring detection for transaction ledgers

Usage:
  mulerift [flags] <ledger.csv>   analyze a ledger, write JSON report to stdout
  mulerift [flags] serve          run the HTTP API

Flags:
  -strict            reject the whole run on the first malformed row
  -timeout <dur>     abort the run after this duration (e.g. 30s)
  -policies <file>   JSON file of account policies

Configuration can also be set via MULERIFT_* environment variables.
`, Version)
}
