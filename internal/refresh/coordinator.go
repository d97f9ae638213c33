package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/internal/logger"
	"github.com/samvad-hq/samvad-news-feed/internal/metrics"
)

var (
	// ErrRefreshInProgress is returned by RefreshNow while another run holds the guard.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrNothingFetched fails a synchronous read when every partition failed.
	ErrNothingFetched = errors.New("no articles fetched")
)

// Decision is what EnsureFresh did for a read.
type Decision string

const (
	DecisionFresh      Decision = "fresh"
	DecisionSync       Decision = "sync"
	DecisionBackground Decision = "background"
	DecisionCooldown   Decision = "cooldown"
	DecisionInFlight   Decision = "in-flight"
)

// Runner executes one fetch-and-store sequence.
type Runner interface {
	Run(ctx context.Context, trigger string) (domain.RefreshStats, error)
}

// StateReader is the part of the store the staleness check reads.
type StateReader interface {
	Count(ctx context.Context, f domain.Filter) (int, error)
	MostRecentFetch(ctx context.Context, f domain.Filter) (time.Time, bool, error)
}

// CoordinatorConfig holds the refresh windows.
type CoordinatorConfig struct {
	StalenessWindow   time.Duration
	Cooldown          time.Duration
	BackgroundTimeout time.Duration
	Now               func() time.Time
	Logger            logger.Logger
	Metrics           *metrics.Recorder
}

const (
	defaultStalenessWindow   = 12 * time.Hour
	defaultCooldown          = 5 * time.Minute
	defaultBackgroundTimeout = 5 * time.Minute
)

// State is a snapshot of the in-process refresh guard.
type State struct {
	Refreshing  bool      `json:"refreshing"`
	LastAttempt time.Time `json:"lastAttempt"`
}

// Coordinator decides when reads trigger a refresh and allows at most one run at a time in
// this process.
type Coordinator struct {
	base   context.Context
	runner Runner
	store  StateReader
	cfg    CoordinatorConfig
	log    logger.Logger

	mu          sync.Mutex
	refreshing  bool
	lastAttempt time.Time

	wg sync.WaitGroup
}

// NewCoordinator builds a coordinator. Background runs derive from base, never from a request.
func NewCoordinator(base context.Context, runner Runner, store StateReader, cfg CoordinatorConfig) *Coordinator {
	if base == nil {
		base = context.Background()
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = defaultStalenessWindow
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = defaultBackgroundTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		base:        base,
		runner:      runner,
		store:       store,
		cfg:         cfg,
		log:         logger.Ensure(cfg.Logger),
		lastAttempt: time.Unix(0, 0).UTC(),
	}
}

// EnsureFresh runs the staleness check for a read. An empty store refreshes synchronously and
// fails the read when that run fails or fetches nothing while partitions failed. A stale or
// absent filtered view starts a background run and returns immediately.
func (c *Coordinator) EnsureFresh(ctx context.Context, f domain.Filter) (Decision, error) {
	total, err := c.store.Count(ctx, domain.Filter{})
	if err != nil {
		return "", fmt.Errorf("count records: %w", err)
	}

	if total == 0 {
		if blocked := c.begin(false); blocked != "" {
			c.cfg.Metrics.Decision(string(blocked))
			return blocked, nil
		}
		c.cfg.Metrics.Decision(string(DecisionSync))

		stats, err := c.runLocked(ctx, TriggerReadSync)
		if err != nil {
			return DecisionSync, err
		}
		if stats.Total == 0 && stats.PartitionErrors > 0 {
			return DecisionSync, fmt.Errorf("%w: %d partitions failed", ErrNothingFetched, stats.PartitionErrors)
		}
		return DecisionSync, nil
	}

	latest, ok, err := c.store.MostRecentFetch(ctx, f)
	if err != nil {
		return "", fmt.Errorf("most recent fetch: %w", err)
	}
	if ok && c.cfg.Now().Sub(latest) <= c.cfg.StalenessWindow {
		c.cfg.Metrics.Decision(string(DecisionFresh))
		return DecisionFresh, nil
	}

	if blocked := c.begin(false); blocked != "" {
		c.cfg.Metrics.Decision(string(blocked))
		return blocked, nil
	}
	c.cfg.Metrics.Decision(string(DecisionBackground))
	c.startBackground(f)
	return DecisionBackground, nil
}

// RefreshNow runs the sequence synchronously for manual and scheduled triggers. It respects the
// in-flight guard but not the cooldown.
func (c *Coordinator) RefreshNow(ctx context.Context, trigger string) (domain.RefreshStats, error) {
	if blocked := c.begin(true); blocked != "" {
		return domain.RefreshStats{}, ErrRefreshInProgress
	}
	return c.runLocked(ctx, trigger)
}

// Wait blocks until background runs finish. Call only at shutdown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Snapshot returns the guard state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Refreshing: c.refreshing, LastAttempt: c.lastAttempt}
}

// begin takes the guard and stamps lastAttempt. It returns the blocking decision, or "" when
// the caller now owns the guard.
func (c *Coordinator) begin(ignoreCooldown bool) Decision {
	now := c.cfg.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshing {
		return DecisionInFlight
	}
	if !ignoreCooldown && now.Sub(c.lastAttempt) <= c.cfg.Cooldown {
		return DecisionCooldown
	}
	c.refreshing = true
	c.lastAttempt = now
	return ""
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	c.refreshing = false
	c.mu.Unlock()
}

// runLocked executes a run while the caller holds the guard and always releases it.
func (c *Coordinator) runLocked(ctx context.Context, trigger string) (domain.RefreshStats, error) {
	defer c.finish()
	return c.runner.Run(ctx, trigger)
}

func (c *Coordinator) startBackground(f domain.Filter) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.base, c.cfg.BackgroundTimeout)
		defer cancel()

		stats, err := c.runLocked(ctx, TriggerReadBackground)
		if err != nil {
			c.log.ErrorObj("background refresh failed", "background_refresh", map[string]any{
				"category": f.Category,
				"country":  f.Country,
				"language": f.Language,
				"error":    err.Error(),
			})
			return
		}
		c.log.InfoObj("background refresh completed", "background_refresh", map[string]any{
			"category": f.Category,
			"country":  f.Country,
			"saved":    stats.Saved,
			"updated":  stats.Updated,
			"skipped":  stats.Skipped,
			"total":    stats.Total,
		})
	}()
}
