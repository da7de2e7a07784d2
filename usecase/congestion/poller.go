package congestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/congestion/lib/notifier"
	repository "github.com/desain-gratis/congestion/repository/congestion"
	"github.com/desain-gratis/congestion/types/entity"
)

const (
	DefaultInterval     = 300 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// Config is the runtime config of the poller
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration

	// StaleAfter prunes areas not observed for this long. Zero keeps them forever.
	StaleAfter time.Duration
}

type Option func(p *Poller)

// WithStateStore persists the cache after every successful cycle
func WithStateStore(store repository.StateStore) Option {
	return func(p *Poller) {
		p.store = store
	}
}

// WithJournal records every non-empty alert set
func WithJournal(journal repository.AlertJournal) Option {
	return func(p *Poller) {
		p.journal = journal
	}
}

// Poller drives the fetch, diff, broadcast cycle.
// Cycles never overlap: Run is a single goroutine and RunOnce is serialized.
type Poller struct {
	cfg         Config
	fetcher     repository.Fetcher
	cache       *StateCache
	broadcaster notifier.Broadcaster
	store       repository.StateStore
	journal     repository.AlertJournal
	now         func() time.Time

	cycleLock *sync.Mutex

	statusLock *sync.RWMutex
	last       CycleResult
	cycles     uint64
	failures   uint64
}

func NewPoller(
	cfg Config,
	fetcher repository.Fetcher,
	cache *StateCache,
	broadcaster notifier.Broadcaster,
	opts ...Option,
) (*Poller, error) {
	if fetcher == nil {
		return nil, errors.New("poller: fetcher required")
	}
	if cache == nil {
		return nil, errors.New("poller: cache required")
	}
	if broadcaster == nil {
		return nil, errors.New("poller: broadcaster required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	p := &Poller{
		cfg:         cfg,
		fetcher:     fetcher,
		cache:       cache,
		broadcaster: broadcaster,
		now:         time.Now,
		cycleLock:   &sync.Mutex{},
		statusLock:  &sync.RWMutex{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Run executes one cycle immediately and then one per interval until ctx is done.
// A cycle that overruns the interval delays the next one; ticks are dropped,
// never run in parallel.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Msgf("congestion poller: started with interval %v", p.cfg.Interval)

	p.RunOnce(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("congestion poller: stopped")
			return nil
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs exactly one cycle.
// A failed fetch aborts the cycle: nothing is broadcast and the cache is untouched.
func (p *Poller) RunOnce(ctx context.Context) (res CycleResult) {
	p.cycleLock.Lock()
	defer p.cycleLock.Unlock()

	res.StartedAt = p.now()
	defer func() {
		res.Duration = p.now().Sub(res.StartedAt)
		p.record(res)
	}()

	// fetching
	snapshot, err := p.fetch(ctx)
	if err != nil {
		res.Err = err
		log.Err(err).Msgf("congestion poller: cycle aborted")
		return res
	}
	res.Areas = len(snapshot)

	// diffing
	alerts := p.cache.DiffAndUpdate(snapshot)
	res.Alerts = len(alerts)

	// broadcasting; update always goes out before alert
	res.Delivered = p.broadcaster.Broadcast(ctx, notifier.Event{Name: EventUpdate, Data: snapshot})
	if len(alerts) > 0 {
		p.broadcaster.Broadcast(ctx, notifier.Event{Name: EventAlert, Data: alerts})
		log.Info().Msgf("congestion poller: %v area(s) alerted", len(alerts))
	}

	if p.cfg.StaleAfter > 0 {
		pruned := p.cache.Prune(res.StartedAt.Add(-p.cfg.StaleAfter))
		res.Pruned = len(pruned)
		if len(pruned) > 0 {
			log.Info().Msgf("congestion poller: pruned stale areas %v", pruned)
		}
	}

	p.persist(ctx, res.StartedAt, alerts)

	log.Info().Msgf("congestion poller: cycle done areas=%v alerts=%v delivered=%v", res.Areas, res.Alerts, res.Delivered)

	return res
}

func (p *Poller) fetch(ctx context.Context) (entity.Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	snapshot, err := p.fetcher.Fetch(fctx)
	if err != nil {
		if !errors.Is(err, entity.ErrFetch) {
			err = fmt.Errorf("%w: %w", entity.ErrFetch, err)
		}
		return nil, err
	}

	for _, area := range snapshot {
		if !area.Level.Valid() {
			return nil, fmt.Errorf("%w: area %v: %w", entity.ErrFetch, area.Name, entity.ErrUnknownLevel)
		}
	}

	return snapshot, nil
}

// persist is best effort; failures never undo a broadcast cycle
func (p *Poller) persist(ctx context.Context, at time.Time, alerts entity.AlertSet) {
	if p.store != nil {
		if err := p.store.Save(ctx, p.cache.CurrentSnapshot()); err != nil {
			log.Warn().Err(err).Msgf("congestion poller: failed to persist state")
		}
	}

	if p.journal != nil && len(alerts) > 0 {
		if err := p.journal.Record(ctx, at, alerts); err != nil {
			log.Warn().Err(err).Msgf("congestion poller: failed to record alerts")
		}
	}
}

func (p *Poller) record(res CycleResult) {
	p.statusLock.Lock()
	defer p.statusLock.Unlock()

	p.last = res
	p.cycles++
	if res.Err != nil {
		p.failures++
	}
}

// Status returns the result of the last cycle
func (p *Poller) Status() CycleResult {
	p.statusLock.RLock()
	defer p.statusLock.RUnlock()
	return p.last
}

// GetMetric to support metrics query
func (p *Poller) GetMetric() any {
	p.statusLock.RLock()
	defer p.statusLock.RUnlock()

	metric := map[string]any{
		"interval":       p.cfg.Interval.String(),
		"n_cycle":        p.cycles,
		"n_cycle_failed": p.failures,
		"last_cycle":     p.last,
	}
	if p.last.Err != nil {
		metric["last_error"] = p.last.Err.Error()
	}

	return metric
}
