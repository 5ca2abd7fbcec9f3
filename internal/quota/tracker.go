// Package quota enforces the monthly call budget against the upstream
// flight-data provider. The counter rolls over lazily: a month transition is
// detected on the next read or increment, not by a timer.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tripkeeper/tripkeeper/internal/docstore"
)

const documentName = "quota.json"

// Counter is the persisted quota document. Fields are additive for forward
// compatibility; there is no schema versioning beyond that.
type Counter struct {
	MonthlyLimit   int       `json:"monthly_limit"`
	CurrentMonth   int       `json:"current_month"`
	CurrentYear    int       `json:"current_year"`
	CallsThisMonth int       `json:"calls_this_month"`
	LastReset      time.Time `json:"last_reset"`
}

// Stats is the derived usage view for reporting.
type Stats struct {
	MonthlyLimit   int       `json:"monthly_limit"`
	CallsThisMonth int       `json:"calls_this_month"`
	Remaining      int       `json:"remaining"`
	PercentUsed    float64   `json:"percent_used"`
	CurrentMonth   int       `json:"current_month"`
	CurrentYear    int       `json:"current_year"`
	LastReset      time.Time `json:"last_reset"`
}

// Tracker is the single writer of the quota counter. RecordCall is the only
// path that increments it.
type Tracker struct {
	mu      sync.Mutex
	store   docstore.Store
	limit   int
	counter *Counter
	loaded  bool
	nowFn   func() time.Time
}

func NewTracker(store docstore.Store, monthlyLimit int) *Tracker {
	return &Tracker{
		store: store,
		limit: monthlyLimit,
		nowFn: time.Now,
	}
}

// SetMonthlyLimit applies a new limit, e.g. after a config reload.
func (t *Tracker) SetMonthlyLimit(limit int) {
	if t == nil || limit <= 0 {
		return
	}
	t.mu.Lock()
	t.limit = limit
	if t.counter != nil {
		t.counter.MonthlyLimit = limit
	}
	t.mu.Unlock()
}

// RecordCall counts one upstream request attempt. It must be invoked exactly
// once per attempt that reaches the provider, whether the attempt succeeds or
// fails; the quota-exhausted skip path performs zero attempts and never calls
// it.
func (t *Tracker) RecordCall(ctx context.Context) error {
	if t == nil {
		return errors.New("quota: tracker not initialized")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoadedLocked(ctx); err != nil {
		return fmt.Errorf("quota: counter unavailable: %w", err)
	}
	t.rolloverLocked()
	t.counter.CallsThisMonth++
	return t.persistLocked(ctx)
}

// IsLimitReached normalizes the stored month, then reports whether the budget
// for the current month is spent.
func (t *Tracker) IsLimitReached(ctx context.Context) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoadedLocked(ctx); err != nil {
		// Without the persisted count the remaining budget is unknown; skip
		// rather than risk overrunning it.
		log.WithError(err).Warn("quota: counter unavailable, treating limit as reached")
		return true
	}
	if t.rolloverLocked() {
		if err := t.persistLocked(ctx); err != nil {
			log.WithError(err).Error("quota: persisting month rollover failed")
		}
	}
	return t.counter.CallsThisMonth >= t.counter.MonthlyLimit
}

// UsageStats returns the derived usage view. It mutates nothing beyond the
// same lazy rollover normalization.
func (t *Tracker) UsageStats(ctx context.Context) Stats {
	if t == nil {
		return Stats{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoadedLocked(ctx); err != nil {
		log.WithError(err).Warn("quota: counter unavailable, reporting an empty counter")
		return Stats{
			MonthlyLimit: t.limit,
			Remaining:    t.limit,
			CurrentMonth: t.counter.CurrentMonth,
			CurrentYear:  t.counter.CurrentYear,
			LastReset:    t.counter.LastReset,
		}
	}
	if t.rolloverLocked() {
		if err := t.persistLocked(ctx); err != nil {
			log.WithError(err).Error("quota: persisting month rollover failed")
		}
	}
	c := t.counter
	remaining := c.MonthlyLimit - c.CallsThisMonth
	if remaining < 0 {
		remaining = 0
	}
	percent := 0.0
	if c.MonthlyLimit > 0 {
		percent = float64(c.CallsThisMonth) / float64(c.MonthlyLimit) * 100
	}
	return Stats{
		MonthlyLimit:   c.MonthlyLimit,
		CallsThisMonth: c.CallsThisMonth,
		Remaining:      remaining,
		PercentUsed:    percent,
		CurrentMonth:   c.CurrentMonth,
		CurrentYear:    c.CurrentYear,
		LastReset:      c.LastReset,
	}
}

func (t *Tracker) ensureLoadedLocked(ctx context.Context) error {
	if t.loaded {
		return nil
	}
	now := t.nowFn().UTC()
	fresh := &Counter{
		MonthlyLimit: t.limit,
		CurrentMonth: int(now.Month()),
		CurrentYear:  now.Year(),
		LastReset:    now,
	}

	raw, err := t.store.Load(ctx, documentName)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			// Keep loaded false so the next call retries: a transient read
			// failure must not erase the persisted count.
			t.counter = fresh
			return err
		}
		t.loaded = true
		t.counter = fresh
		return nil
	}
	t.loaded = true
	var loaded Counter
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.WithError(err).Error("quota: counter document malformed, starting from an empty counter")
		t.counter = fresh
		return nil
	}
	// Runtime config wins over the persisted limit.
	loaded.MonthlyLimit = t.limit
	t.counter = &loaded
	return nil
}

// rolloverLocked resets the counter when the stored month or year differs
// from now. Returns true when a reset happened.
func (t *Tracker) rolloverLocked() bool {
	now := t.nowFn().UTC()
	if t.counter.CurrentMonth == int(now.Month()) && t.counter.CurrentYear == now.Year() {
		return false
	}
	log.Infof("quota: month rollover %d-%02d -> %d-%02d, resetting counter (was %d)",
		t.counter.CurrentYear, t.counter.CurrentMonth, now.Year(), int(now.Month()), t.counter.CallsThisMonth)
	t.counter.CallsThisMonth = 0
	t.counter.CurrentMonth = int(now.Month())
	t.counter.CurrentYear = now.Year()
	t.counter.LastReset = now
	return true
}

func (t *Tracker) persistLocked(ctx context.Context) error {
	raw, err := json.MarshalIndent(t.counter, "", "  ")
	if err != nil {
		return err
	}
	return t.store.Save(ctx, documentName, raw)
}
