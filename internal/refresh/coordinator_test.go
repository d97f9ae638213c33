package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    atomic.Int32
	triggers []string
	stats    domain.RefreshStats
	err      error
	release  chan struct{}
	started  chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, trigger string) (domain.RefreshStats, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return domain.RefreshStats{}, ctx.Err()
		}
	}
	return r.stats, r.err
}

func (r *fakeRunner) lastTrigger() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.triggers) == 0 {
		return ""
	}
	return r.triggers[len(r.triggers)-1]
}

type fakeState struct {
	count    int
	latest   time.Time
	hasFetch bool
	err      error
}

func (s *fakeState) Count(context.Context, domain.Filter) (int, error) { return s.count, s.err }
func (s *fakeState) MostRecentFetch(context.Context, domain.Filter) (time.Time, bool, error) {
	return s.latest, s.hasFetch, s.err
}

var baseNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestCoordinator(runner Runner, state StateReader, now *time.Time) *Coordinator {
	return NewCoordinator(context.Background(), runner, state, CoordinatorConfig{
		StalenessWindow:   12 * time.Hour,
		Cooldown:          5 * time.Minute,
		BackgroundTimeout: time.Second,
		Now:               func() time.Time { return *now },
	})
}

func TestEnsureFreshEmptyStoreRunsSynchronously(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{stats: domain.RefreshStats{Saved: 4, Total: 4}}
	c := newTestCoordinator(runner, &fakeState{count: 0}, &now)

	decision, err := c.EnsureFresh(context.Background(), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, DecisionSync, decision)
	assert.EqualValues(t, 1, runner.calls.Load())
	assert.Equal(t, TriggerReadSync, runner.lastTrigger())

	state := c.Snapshot()
	assert.False(t, state.Refreshing)
	assert.True(t, state.LastAttempt.Equal(now))
}

func TestEnsureFreshEmptyStoreFailurePropagates(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{err: domain.ErrStoreUnavailable}
	c := newTestCoordinator(runner, &fakeState{count: 0}, &now)

	_, err := c.EnsureFresh(context.Background(), domain.Filter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.False(t, c.Snapshot().Refreshing, "guard must be released on failure")
}

func TestEnsureFreshEmptyStoreNothingFetched(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{stats: domain.RefreshStats{PartitionErrors: 4}}
	c := newTestCoordinator(runner, &fakeState{count: 0}, &now)

	_, err := c.EnsureFresh(context.Background(), domain.Filter{})
	assert.ErrorIs(t, err, ErrNothingFetched)
}

func TestEnsureFreshStaleViewRefreshesInBackground(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{}
	state := &fakeState{count: 10, latest: now.Add(-13 * time.Hour), hasFetch: true}
	c := newTestCoordinator(runner, state, &now)

	decision, err := c.EnsureFresh(context.Background(), domain.Filter{Category: "MOVIE", Country: "US"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBackground, decision)

	c.Wait()
	assert.EqualValues(t, 1, runner.calls.Load())
	assert.Equal(t, TriggerReadBackground, runner.lastTrigger())
	assert.False(t, c.Snapshot().Refreshing)
}

func TestEnsureFreshRecentViewDoesNothing(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{}
	state := &fakeState{count: 10, latest: now.Add(-11 * time.Hour), hasFetch: true}
	c := newTestCoordinator(runner, state, &now)

	decision, err := c.EnsureFresh(context.Background(), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, DecisionFresh, decision)
	c.Wait()
	assert.EqualValues(t, 0, runner.calls.Load())
}

func TestEnsureFreshAbsentViewRefreshes(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{}
	c := newTestCoordinator(runner, &fakeState{count: 3, hasFetch: false}, &now)

	decision, err := c.EnsureFresh(context.Background(), domain.Filter{Category: "TV"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBackground, decision)
	c.Wait()
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestEnsureFreshCooldownBlocksSecondRefresh(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{}
	state := &fakeState{count: 10, latest: now.Add(-13 * time.Hour), hasFetch: true}
	c := newTestCoordinator(runner, state, &now)

	first, err := c.EnsureFresh(context.Background(), domain.Filter{})
	require.NoError(t, err)
	c.Wait()

	now = now.Add(2 * time.Minute)
	second, err := c.EnsureFresh(context.Background(), domain.Filter{})
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, DecisionBackground, first)
	assert.Equal(t, DecisionCooldown, second)
	assert.EqualValues(t, 1, runner.calls.Load())

	now = now.Add(4 * time.Minute)
	third, err := c.EnsureFresh(context.Background(), domain.Filter{})
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, DecisionBackground, third)
	assert.EqualValues(t, 2, runner.calls.Load())
}

func TestEnsureFreshConcurrentReadsRunOnce(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newTestCoordinator(runner, &fakeState{count: 0}, &now)

	done := make(chan Decision, 1)
	go func() {
		d, _ := c.EnsureFresh(context.Background(), domain.Filter{})
		done <- d
	}()
	<-runner.started

	var wg sync.WaitGroup
	decisions := make(chan Decision, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.EnsureFresh(context.Background(), domain.Filter{})
			assert.NoError(t, err)
			decisions <- d
		}()
	}
	wg.Wait()
	close(decisions)
	for d := range decisions {
		assert.Equal(t, DecisionInFlight, d)
	}

	close(runner.release)
	assert.Equal(t, DecisionSync, <-done)
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestRefreshNowIgnoresCooldownButNotInFlight(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{stats: domain.RefreshStats{Updated: 3, Total: 3}}
	c := newTestCoordinator(runner, &fakeState{count: 0}, &now)

	_, err := c.EnsureFresh(context.Background(), domain.Filter{})
	require.NoError(t, err)

	now = now.Add(time.Minute)
	stats, err := c.RefreshNow(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Updated)
	assert.EqualValues(t, 2, runner.calls.Load())
	assert.True(t, c.Snapshot().LastAttempt.Equal(now))

	blocking := &fakeRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c2 := newTestCoordinator(blocking, &fakeState{count: 0}, &now)
	go func() { _, _ = c2.RefreshNow(context.Background(), TriggerSchedule) }()
	<-blocking.started

	_, err = c2.RefreshNow(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	close(blocking.release)
}

func TestEnsureFreshStoreErrorPropagates(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{}
	c := newTestCoordinator(runner, &fakeState{err: errors.Join(domain.ErrStoreUnavailable, errors.New("down"))}, &now)

	_, err := c.EnsureFresh(context.Background(), domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.EqualValues(t, 0, runner.calls.Load())
}

func TestBackgroundRunOutlivesRequestContext(t *testing.T) {
	now := baseNow
	runner := &fakeRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newTestCoordinator(runner, &fakeState{count: 1, hasFetch: false}, &now)

	reqCtx, cancel := context.WithCancel(context.Background())
	decision, err := c.EnsureFresh(reqCtx, domain.Filter{})
	require.NoError(t, err)
	require.Equal(t, DecisionBackground, decision)
	cancel()

	<-runner.started
	assert.True(t, c.Snapshot().Refreshing)
	close(runner.release)
	c.Wait()
	assert.False(t, c.Snapshot().Refreshing)
}
