// Package engine orchestrates the analysis pipeline: load, build, detect,
// score, aggregate, assemble.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/mulerift/internal/detect"
	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
	"github.com/opensource-finance/mulerift/internal/ledger"
	"github.com/opensource-finance/mulerift/internal/policy"
	"github.com/opensource-finance/mulerift/internal/report"
	"github.com/opensource-finance/mulerift/internal/ring"
	"github.com/opensource-finance/mulerift/internal/score"
)

var tracer = otel.Tracer("mulerift-engine")

// Engine runs one ledger snapshot through the full pipeline. Each run is
// independent: no state crosses run boundaries.
type Engine struct {
	cfg      *domain.Config
	policies *policy.Engine  // optional
	archive  domain.Archive  // optional
	bus      domain.EventBus // optional
}

// New creates an engine. policies, archive and bus may be nil; batch mode
// typically runs with all three absent.
func New(cfg *domain.Config, policies *policy.Engine, archive domain.Archive, bus domain.EventBus) *Engine {
	return &Engine{
		cfg:      cfg,
		policies: policies,
		archive:  archive,
		bus:      bus,
	}
}

// AnalyzeFile runs the pipeline over a ledger file.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*domain.AnalysisResult, error) {
	start := time.Now()
	loader := ledger.NewLoader(e.cfg.Strict)
	txs, stats, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return e.analyze(ctx, start, txs, stats, path)
}

// Analyze runs the pipeline over a ledger stream. source names the input
// for logs and archive records.
func (e *Engine) Analyze(ctx context.Context, r io.Reader, source string) (*domain.AnalysisResult, error) {
	start := time.Now()
	loader := ledger.NewLoader(e.cfg.Strict)
	txs, stats, err := loader.Load(r)
	if err != nil {
		return nil, err
	}
	return e.analyze(ctx, start, txs, stats, source)
}

// analyze runs the post-load stages. start is taken before loading so the
// reported processing time covers the whole run, loader included.
func (e *Engine) analyze(ctx context.Context, start time.Time, txs []domain.Transaction, stats *domain.LoadStats, source string) (*domain.AnalysisResult, error) {
	runID := uuid.New().String()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "engine.analyze")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("ledger.transactions", len(txs)),
	)
	defer span.End()

	g := graph.Build(txs)
	slog.Info("graph built",
		"run_id", runID,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
	)
	if err := runErr(ctx); err != nil {
		return nil, err
	}

	signals, err := detect.Run(ctx, g, detect.All(e.cfg))
	if err != nil {
		if terr := runErr(ctx); terr != nil {
			return nil, terr
		}
		return nil, err
	}

	scored := score.NewScorer(e.cfg.Scoring).Score(signals)
	slog.Info("signals scored",
		"run_id", runID,
		"signals", scored.SignalsTotal,
		"flagged", len(scored.Accounts),
		"below_threshold", scored.BelowThreshold,
		"rows_rejected", stats.RowsRejected,
	)

	accounts := scored.Accounts
	effective := scored.Scores
	if e.policies != nil && e.policies.PolicyCount() > 0 {
		accounts = e.policies.Apply(accounts, g)
		effective = adjustScores(scored, accounts)
	}
	if err := runErr(ctx); err != nil {
		return nil, err
	}

	rings, assignment := ring.NewAggregator().Aggregate(signals, effective)

	result, err := report.Assemble(accounts, rings, assignment, g, time.Since(start))
	if err != nil {
		return nil, err
	}
	if err := runErr(ctx); err != nil {
		return nil, err
	}

	e.record(ctx, runID, source, start, result)
	return result, nil
}

// runErr maps context expiry to the run's timeout outcome. A cancelled or
// timed-out run never yields a partial result.
func runErr(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrTimeout
	}
	return err
}

// adjustScores overlays policy outcomes on the raw scores: boosts replace
// the combined score, suppressed accounts stop contributing to ring risk.
func adjustScores(scored *score.Result, kept []domain.SuspiciousAccount) map[string]float64 {
	effective := make(map[string]float64, len(scored.Scores))
	for id, s := range scored.Scores {
		effective[id] = s
	}

	keptSet := make(map[string]struct{}, len(kept))
	for _, account := range kept {
		keptSet[account.AccountID] = struct{}{}
		effective[account.AccountID] = account.SuspicionScore
	}
	for _, account := range scored.Accounts {
		if _, ok := keptSet[account.AccountID]; !ok {
			effective[account.AccountID] = 0
		}
	}
	return effective
}

// record persists and publishes the finished run. Failures here are logged,
// not fatal: the report is already assembled.
func (e *Engine) record(ctx context.Context, runID, source string, start time.Time, result *domain.AnalysisResult) {
	if e.archive != nil {
		run := &domain.RunRecord{
			RunID:           runID,
			Source:          source,
			StartedAt:       start.UTC(),
			DurationSeconds: result.Summary.ProcessingTimeSeconds,
			Report:          result,
		}
		if err := e.archive.SaveRun(ctx, run); err != nil {
			slog.Error("failed to archive run", "run_id", runID, "error", err)
		}
	}

	if e.bus == nil {
		return
	}
	runPayload, _ := json.Marshal(domain.RunEvent{
		RunID:   runID,
		Source:  source,
		Summary: result.Summary,
	})
	if err := e.bus.Publish(ctx, domain.TopicRunCompleted, runPayload); err != nil {
		slog.Error("failed to publish run event", "run_id", runID, "error", err)
	}
	for _, r := range result.FraudRings {
		if r.RiskScore < e.cfg.Rings.AlertFloor {
			continue
		}
		payload, _ := json.Marshal(domain.RingEvent{RunID: runID, Ring: r})
		if err := e.bus.Publish(ctx, domain.TopicRingDetected, payload); err != nil {
			slog.Error("failed to publish ring event",
				"run_id", runID,
				"ring_id", r.RingID,
				"error", err,
			)
		}
	}
}
