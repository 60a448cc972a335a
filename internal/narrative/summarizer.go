// Package narrative writes AI summaries for packages that have not been
// processed yet.
package narrative

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/store"
	"github.com/sells-group/gps-cli/pkg/anthropic"
)

// Defaults applied by NewSummarizer.
const (
	DefaultModel       = "claude-haiku-4-5-20251001"
	DefaultMaxTokens   = 1024
	DefaultBatchSize   = 5
	DefaultConcurrency = 2
)

// Store is the persistence the summarizer needs.
type Store interface {
	ListPackages(ctx context.Context, filter store.PackageFilter) ([]model.MonthlyPackage, error)
	CompleteNarrative(ctx context.Context, n model.Narrative) (*model.Narrative, error)
}

// Config tunes a Summarizer.
type Config struct {
	Model       string
	MaxTokens   int64
	BatchSize   int
	Concurrency int
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Policy    resilience.Policy
}

// Filter narrows which unprocessed packages a run picks up.
type Filter struct {
	Month *model.Month
	Level model.ScopeLevel
	// Limit overrides the configured batch size when positive.
	Limit int
}

// Result summarizes one run.
type Result struct {
	Selected  int                  `json:"selected"`
	Processed int                  `json:"processed"`
	Skipped   int                  `json:"skipped"`
	Failed    int                  `json:"failed"`
	Usage     anthropic.TokenUsage `json:"usage"`
}

// Summarizer turns packages into narratives.
type Summarizer struct {
	client  anthropic.Client
	store   Store
	cfg     Config
	limiter *rate.Limiter
	system  []anthropic.SystemBlock
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(client anthropic.Client, st Store, cfg Config) *Summarizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	s := &Summarizer{
		client: client,
		store:  st,
		cfg:    cfg,
		system: anthropic.BuildCachedSystemBlocks(SystemPrompt()),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s
}

// Run summarizes up to one batch of unprocessed packages, newest month
// first. A package that fails is logged and left unprocessed for the next
// run; only listing failures and cancellation fail the run.
func (s *Summarizer) Run(ctx context.Context, f Filter) (*Result, error) {
	limit := s.cfg.BatchSize
	if f.Limit > 0 {
		limit = f.Limit
	}
	pkgs, err := resilience.DoVal(ctx, s.cfg.Policy.With("narrative", "list packages"), func(ctx context.Context) ([]model.MonthlyPackage, error) {
		p, err := s.store.ListPackages(ctx, store.PackageFilter{
			Month: f.Month, Level: f.Level, Unprocessed: true, Limit: limit,
		})
		return p, store.Classify("list packages", err)
	})
	if err != nil {
		return nil, eris.Wrap(err, "narrative: list unprocessed packages")
	}

	res := &Result{Selected: len(pkgs)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, p := range pkgs {
		g.Go(func() error {
			usage, err := s.summarize(gctx, p)

			mu.Lock()
			defer mu.Unlock()
			addUsage(&res.Usage, usage)
			switch {
			case err == nil:
				res.Processed++
			case errors.Is(err, store.ErrAlreadyProcessed):
				res.Skipped++
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				res.Failed++
				zap.L().Warn("narrative: package failed",
					zap.String("package_id", p.ID),
					zap.String("key", p.Key().String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, eris.Wrap(err, "narrative: run cancelled")
	}

	zap.L().Info("narrative run complete",
		zap.Int("selected", res.Selected),
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Float64("estimated_cost_usd", res.Usage.EstimateCost(s.cfg.Model)),
	)
	return res, nil
}

func (s *Summarizer) summarize(ctx context.Context, p model.MonthlyPackage) (anthropic.TokenUsage, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return anthropic.TokenUsage{}, err
		}
	}

	req := anthropic.MessageRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		System:    s.system,
		Messages:  []anthropic.Message{{Role: "user", Content: BuildPrompt(p)}},
	}
	resp, err := resilience.DoVal(ctx, s.cfg.Policy.With("narrative", "create message"), func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return anthropic.TokenUsage{}, eris.Wrapf(err, "narrative: summarize %s", p.Key())
	}
	resp.Usage.LogCost(s.cfg.Model, p.Key().String())

	text := resp.Text()
	if text == "" {
		return resp.Usage, eris.Errorf("narrative: empty response for %s", p.Key())
	}
	modelID := resp.Model
	if modelID == "" {
		modelID = s.cfg.Model
	}
	if _, err := s.store.CompleteNarrative(ctx, model.Narrative{
		PackageID: p.ID,
		Content:   text,
		Model:     modelID,
	}); err != nil {
		return resp.Usage, eris.Wrapf(err, "narrative: save %s", p.Key())
	}
	return resp.Usage, nil
}

func addUsage(total *anthropic.TokenUsage, u anthropic.TokenUsage) {
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
	total.CacheCreationInputTokens += u.CacheCreationInputTokens
	total.CacheReadInputTokens += u.CacheReadInputTokens
}
