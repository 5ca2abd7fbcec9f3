// Package scheduler drives the tier-triggered status refresh loop. Four cron
// triggers share one selection rule parameterized by minimum tier: the daily
// pass covers every active flight, the midday and evening passes cover
// thrice-daily and hourly flights, and the hourly pass covers only the
// flights departing soon. A single mutating lock serializes trigger runs so
// overlapping firings can never interleave cache or quota writes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/tripkeeper/tripkeeper/internal/cache"
	"github.com/tripkeeper/tripkeeper/internal/flight"
	"github.com/tripkeeper/tripkeeper/internal/gitsync"
	"github.com/tripkeeper/tripkeeper/internal/itinerary"
	"github.com/tripkeeper/tripkeeper/internal/quota"
)

// DefaultPacing is the nominal delay between consecutive upstream attempts
// within one trigger run. It is backpressure against the provider's own rate
// limits, not a performance knob.
const DefaultPacing = time.Second

// Job pairs a trigger's selection rule with its cron schedule.
type Job struct {
	Name    string
	MinTier flight.UpdateTier
	Spec    string
}

// DefaultJobs returns the four standard triggers. Firing minutes are offset
// so the daily, twice-daily and hourly triggers never land on the same
// minute.
func DefaultJobs() []Job {
	return []Job{
		{Name: "daily", MinTier: flight.TierDaily, Spec: "0 6 * * *"},
		{Name: "midday", MinTier: flight.TierThriceDaily, Spec: "30 12 * * *"},
		{Name: "evening", MinTier: flight.TierThriceDaily, Spec: "30 18 * * *"},
		{Name: "hourly", MinTier: flight.TierHourly, Spec: "15 * * * *"},
	}
}

// Options wires the scheduler's collaborators.
type Options struct {
	Source  itinerary.Source
	Updater *Updater
	Cache   *cache.Cache
	Quota   *quota.Tracker
	Jobs    []Job
	Pacing  time.Duration
	// Credentials reports whether the provider is usable this cycle. A nil
	// func means always configured.
	Credentials func() bool
	// Syncer, when set, pushes the data directory after each mutating run.
	Syncer *gitsync.Syncer
}

// Scheduler owns the trigger table and the update loop.
type Scheduler struct {
	source      itinerary.Source
	updater     *Updater
	cache       *cache.Cache
	quota       *quota.Tracker
	jobs        []Job
	credentials func() bool
	syncer      *gitsync.Syncer
	nowFn       func() time.Time

	pacingMu sync.Mutex
	pacing   time.Duration

	// runMu is the single mutating lock: one trigger run at a time into the
	// cache and quota counter.
	runMu sync.Mutex

	stateMu sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	started bool
}

func New(opts Options) *Scheduler {
	jobs := opts.Jobs
	if len(jobs) == 0 {
		jobs = DefaultJobs()
	}
	pacing := opts.Pacing
	if pacing <= 0 {
		pacing = DefaultPacing
	}
	return &Scheduler{
		source:      opts.Source,
		updater:     opts.Updater,
		cache:       opts.Cache,
		quota:       opts.Quota,
		jobs:        jobs,
		pacing:      pacing,
		credentials: opts.Credentials,
		syncer:      opts.Syncer,
		nowFn:       time.Now,
	}
}

// SetPacing applies a new inter-call delay, e.g. after a config reload.
func (s *Scheduler) SetPacing(d time.Duration) {
	if s == nil || d <= 0 {
		return
	}
	s.pacingMu.Lock()
	s.pacing = d
	s.pacingMu.Unlock()
}

func (s *Scheduler) currentPacing() time.Duration {
	s.pacingMu.Lock()
	defer s.pacingMu.Unlock()
	return s.pacing
}

// Start registers all triggers and begins firing them. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start() error {
	if s == nil {
		return fmt.Errorf("scheduler: not initialized")
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.started {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New()
	for _, job := range s.jobs {
		job := job
		if _, err := c.AddFunc(job.Spec, func() { s.runTrigger(ctx, job) }); err != nil {
			cancel()
			return fmt.Errorf("scheduler: registering trigger %s (%q): %w", job.Name, job.Spec, err)
		}
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.started = true
	log.Infof("scheduler: started with %d triggers, pacing %s", len(s.jobs), s.currentPacing())
	return nil
}

// Stop tears all triggers down and waits for a running trigger to finish its
// current item. Stopping twice, or before starting, is a no-op.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.cron = nil
	s.cancel = nil
	s.started = false
	log.Info("scheduler: stopped")
}

// TriggerManualUpdate runs the daily selection rule (every active flight)
// synchronously, for diagnostics. It returns the number of flights updated.
func (s *Scheduler) TriggerManualUpdate(ctx context.Context) int {
	if s == nil {
		return 0
	}
	return s.runTrigger(ctx, Job{Name: "manual", MinTier: flight.TierDaily})
}

// TrackedFlights enumerates the current working set with fresh tiers.
func (s *Scheduler) TrackedFlights(ctx context.Context) []flight.TrackedFlight {
	if s == nil {
		return nil
	}
	return itinerary.Enumerate(ctx, s.source, s.nowFn())
}

// CachedStatus is the read accessor for downstream display consumers.
func (s *Scheduler) CachedStatus(ctx context.Context, flightIata, date string) (*cache.Entry, bool) {
	if s == nil {
		return nil, false
	}
	return s.cache.Get(ctx, flightIata, date)
}

// UsageStats reports the quota tracker's derived view.
func (s *Scheduler) UsageStats(ctx context.Context) quota.Stats {
	if s == nil {
		return quota.Stats{}
	}
	return s.quota.UsageStats(ctx)
}

// runTrigger enumerates fresh, selects by minimum tier, and updates each
// selected flight sequentially with pacing. Returns the number of flights
// updated before completion or cancellation.
func (s *Scheduler) runTrigger(ctx context.Context, job Job) int {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.credentials != nil && !s.credentials() {
		log.Warnf("scheduler: provider credentials missing, skipping %s trigger", job.Name)
		return 0
	}

	now := s.nowFn()
	tracked := itinerary.Enumerate(ctx, s.source, now)
	selected := selectByTier(tracked, job.MinTier)
	if len(selected) == 0 {
		log.Debugf("scheduler: %s trigger fired, nothing to update", job.Name)
		return 0
	}
	log.Infof("scheduler: %s trigger updating %d of %d tracked flights", job.Name, len(selected), len(tracked))

	// Cancellation happens between items only: a started update runs to
	// completion (bounded by the provider timeout) so cache and quota writes
	// are never half-applied.
	itemCtx := context.WithoutCancel(ctx)
	updated := 0
	for i, f := range selected {
		if ctx.Err() != nil {
			log.Infof("scheduler: %s trigger cancelled after %d of %d updates", job.Name, updated, len(selected))
			return updated
		}
		s.updater.Update(itemCtx, f)
		updated++
		if i+1 < len(selected) {
			if !sleepCtx(ctx, s.currentPacing()) {
				log.Infof("scheduler: %s trigger cancelled after %d of %d updates", job.Name, updated, len(selected))
				return updated
			}
		}
	}

	if s.syncer != nil {
		if err := s.syncer.Sync(ctx, fmt.Sprintf("flight data update (%s trigger)", job.Name)); err != nil {
			log.WithError(err).Warn("scheduler: syncing data directory failed")
		}
	}
	return updated
}

// selectByTier keeps flights at or above the minimum tier, never tier none,
// and dedupes by flight key so a flight shared between vacations is fetched
// at most once per run.
func selectByTier(tracked []flight.TrackedFlight, minTier flight.UpdateTier) []flight.TrackedFlight {
	seen := make(map[string]struct{}, len(tracked))
	var selected []flight.TrackedFlight
	for _, f := range tracked {
		if f.Tier == flight.TierNone || f.Tier < minTier {
			continue
		}
		if _, dup := seen[f.Key()]; dup {
			continue
		}
		seen[f.Key()] = struct{}{}
		selected = append(selected, f)
	}
	return selected
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
