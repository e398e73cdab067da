package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmerroute/kmerroute/internal/routing"
)

// Router computes direct routes. Satisfied by *routing.Service.
type Router interface {
	Route(ctx context.Context, req routing.DirectRequest) (*routing.Result, error)
}

// WarmupJob pre-computes routes for popular corridors so that user requests hit the cache.
type WarmupJob struct {
	config WarmupConfig
	router Router
	logger zerolog.Logger

	metrics *WarmupMetrics
}

// WarmupMetrics tracks warm-up job statistics.
type WarmupMetrics struct {
	mu sync.RWMutex

	TotalRuns   int64
	Warmed      int64
	Failed      int64
	LastRunAt   time.Time
	LastRunTook time.Duration
	TotalTook   time.Duration
}

// WarmupJobConfig holds configuration for creating a WarmupJob.
type WarmupJobConfig struct {
	Config WarmupConfig
	Router Router
	Logger zerolog.Logger
}

// NewWarmupJob creates a new warm-up job.
func NewWarmupJob(cfg WarmupJobConfig) *WarmupJob {
	config := cfg.Config
	defaults := DefaultWarmupConfig()
	if len(config.Targets) == 0 {
		config.Targets = defaults.Targets
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}

	return &WarmupJob{
		config:  config,
		router:  cfg.Router,
		logger:  cfg.Logger,
		metrics: &WarmupMetrics{},
	}
}

// WarmupResult contains the result of a warm-up run.
type WarmupResult struct {
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	TotalRoutes int
	Warmed      int
	Failed      int
	Errors      []WarmupError
}

// WarmupError records a corridor that could not be routed.
type WarmupError struct {
	Target string
	Mode   routing.Mode
	Error  string
}

// Run warms every configured corridor once.
func (j *WarmupJob) Run(ctx context.Context) *WarmupResult {
	startTime := time.Now()
	items := j.config.items()
	result := &WarmupResult{
		StartTime:   startTime,
		TotalRoutes: len(items),
	}

	j.logger.Info().
		Int("total_routes", result.TotalRoutes).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache warm-up")

	itemsChan := make(chan warmupItem, len(items))
	resultsChan := make(chan itemResult, len(items))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.warmWorker(ctx, itemsChan, resultsChan)
		}()
	}

	for _, it := range items {
		itemsChan <- it
	}
	close(itemsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for r := range resultsChan {
		if r.err == nil {
			result.Warmed++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, WarmupError{
			Target: r.item.target,
			Mode:   r.item.req.Mode,
			Error:  r.err.Error(),
		})
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("warmed", result.Warmed).
		Int("failed", result.Failed).
		Msg("cache warm-up completed")

	return result
}

// Schedule runs the job immediately and then every interval until ctx is done.
func (j *WarmupJob) Schedule(ctx context.Context) {
	j.Run(ctx)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

type itemResult struct {
	item warmupItem
	err  error
}

func (j *WarmupJob) warmWorker(ctx context.Context, items <-chan warmupItem, results chan<- itemResult) {
	for it := range items {
		select {
		case <-ctx.Done():
			results <- itemResult{item: it, err: ctx.Err()}
		default:
			results <- itemResult{item: it, err: j.warm(ctx, it)}
		}
	}
}

func (j *WarmupJob) warm(ctx context.Context, it warmupItem) error {
	if j.router == nil {
		return nil
	}

	itemCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	res, err := j.router.Route(itemCtx, it.req)
	if err != nil {
		j.logger.Warn().Err(err).
			Str("target", it.target).
			Str("mode", string(it.req.Mode)).
			Msg("warm-up route failed")
		return err
	}

	j.logger.Debug().
		Str("target", it.target).
		Str("mode", string(it.req.Mode)).
		Int("route_count", len(res.Routes)).
		Msg("warmed route")
	return nil
}

func (j *WarmupJob) updateMetrics(result *WarmupResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.Warmed += int64(result.Warmed)
	j.metrics.Failed += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunTook = result.Duration
	j.metrics.TotalTook += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *WarmupJob) GetMetrics() WarmupMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return WarmupMetrics{
		TotalRuns:   j.metrics.TotalRuns,
		Warmed:      j.metrics.Warmed,
		Failed:      j.metrics.Failed,
		LastRunAt:   j.metrics.LastRunAt,
		LastRunTook: j.metrics.LastRunTook,
		TotalTook:   j.metrics.TotalTook,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *WarmupJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_runs":    m.TotalRuns,
		"warmed":        m.Warmed,
		"failed":        m.Failed,
		"last_run_at":   m.LastRunAt,
		"last_run_took": m.LastRunTook.String(),
		"total_took":    m.TotalTook.String(),
	}
}
