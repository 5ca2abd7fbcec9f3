package quota

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tripkeeper/tripkeeper/internal/docstore"
)

func fixedNow(value string) func() time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

func TestRecordCall_IncrementsAndPersists(t *testing.T) {
	store := docstore.NewMemoryStore()
	tracker := NewTracker(store, 100)
	tracker.nowFn = fixedNow("2025-01-15T10:00:00Z")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tracker.RecordCall(ctx); err != nil {
			t.Fatalf("RecordCall failed: %v", err)
		}
	}

	stats := tracker.UsageStats(ctx)
	if stats.CallsThisMonth != 3 {
		t.Errorf("calls = %d, want 3", stats.CallsThisMonth)
	}
	if stats.Remaining != 97 {
		t.Errorf("remaining = %d, want 97", stats.Remaining)
	}
	if stats.PercentUsed != 3.0 {
		t.Errorf("percent = %f, want 3.0", stats.PercentUsed)
	}

	// A second tracker over the same store must see the persisted count.
	reloaded := NewTracker(store, 100)
	reloaded.nowFn = fixedNow("2025-01-15T11:00:00Z")
	if got := reloaded.UsageStats(ctx).CallsThisMonth; got != 3 {
		t.Errorf("reloaded calls = %d, want 3", got)
	}
}

func TestIsLimitReached(t *testing.T) {
	tracker := NewTracker(docstore.NewMemoryStore(), 2)
	tracker.nowFn = fixedNow("2025-01-15T10:00:00Z")
	ctx := context.Background()

	if tracker.IsLimitReached(ctx) {
		t.Error("limit reached with zero calls")
	}
	_ = tracker.RecordCall(ctx)
	if tracker.IsLimitReached(ctx) {
		t.Error("limit reached at 1/2")
	}
	_ = tracker.RecordCall(ctx)
	if !tracker.IsLimitReached(ctx) {
		t.Error("limit not reached at 2/2")
	}
}

func TestMonthRollover_ResetsOnRead(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()

	// Persist an exhausted January counter.
	january := &Counter{
		MonthlyLimit:   100,
		CurrentMonth:   1,
		CurrentYear:    2025,
		CallsThisMonth: 100,
		LastReset:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, _ := json.Marshal(january)
	if err := store.Save(ctx, documentName, raw); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	tracker := NewTracker(store, 100)
	tracker.nowFn = fixedNow("2025-02-03T09:00:00Z")

	if tracker.IsLimitReached(ctx) {
		t.Error("limit still reported reached after month rollover")
	}

	stats := tracker.UsageStats(ctx)
	if stats.CallsThisMonth != 0 {
		t.Errorf("calls after rollover = %d, want 0", stats.CallsThisMonth)
	}
	if stats.CurrentMonth != 2 || stats.CurrentYear != 2025 {
		t.Errorf("stored month = %d-%02d, want 2025-02", stats.CurrentYear, stats.CurrentMonth)
	}

	// The rollover must have been persisted as a side effect of the check.
	persisted, err := store.Load(ctx, documentName)
	if err != nil {
		t.Fatalf("load after rollover failed: %v", err)
	}
	var onDisk Counter
	if err := json.Unmarshal(persisted, &onDisk); err != nil {
		t.Fatalf("unmarshal persisted counter: %v", err)
	}
	if onDisk.CallsThisMonth != 0 || onDisk.CurrentMonth != 2 {
		t.Errorf("persisted counter = %+v, want reset February counter", onDisk)
	}
}

func TestYearRollover(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()

	december := &Counter{
		MonthlyLimit:   100,
		CurrentMonth:   12,
		CurrentYear:    2024,
		CallsThisMonth: 42,
		LastReset:      time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, _ := json.Marshal(december)
	_ = store.Save(ctx, documentName, raw)

	tracker := NewTracker(store, 100)
	tracker.nowFn = fixedNow("2025-01-02T00:00:00Z")

	stats := tracker.UsageStats(ctx)
	if stats.CallsThisMonth != 0 || stats.CurrentMonth != 1 || stats.CurrentYear != 2025 {
		t.Errorf("stats after year rollover = %+v", stats)
	}
}

func TestSetMonthlyLimit(t *testing.T) {
	tracker := NewTracker(docstore.NewMemoryStore(), 10)
	tracker.nowFn = fixedNow("2025-01-15T10:00:00Z")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = tracker.RecordCall(ctx)
	}
	if !tracker.IsLimitReached(ctx) {
		t.Fatal("limit should be reached at 10/10")
	}

	tracker.SetMonthlyLimit(50)
	if tracker.IsLimitReached(ctx) {
		t.Error("limit still reached after raising it to 50")
	}
	if got := tracker.UsageStats(ctx).Remaining; got != 40 {
		t.Errorf("remaining = %d, want 40", got)
	}
}

// outageStore fails every Load until healed, then delegates to the wrapped
// store.
type outageStore struct {
	docstore.Store
	healed bool
}

func (s *outageStore) Load(ctx context.Context, name string) ([]byte, error) {
	if !s.healed {
		return nil, errors.New("store unavailable")
	}
	return s.Store.Load(ctx, name)
}

func TestTransientLoadErrorRetainsPersistedCount(t *testing.T) {
	inner := docstore.NewMemoryStore()
	ctx := context.Background()

	march := &Counter{
		MonthlyLimit:   100,
		CurrentMonth:   3,
		CurrentYear:    2025,
		CallsThisMonth: 98,
		LastReset:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, _ := json.Marshal(march)
	_ = inner.Save(ctx, documentName, raw)

	store := &outageStore{Store: inner}
	tracker := NewTracker(store, 100)
	tracker.nowFn = fixedNow("2025-03-10T10:00:00Z")

	// While the store is unreachable the remaining budget is unknown, so the
	// limit must read as reached and RecordCall must refuse to count.
	if !tracker.IsLimitReached(ctx) {
		t.Error("limit not treated as reached during store outage")
	}
	if err := tracker.RecordCall(ctx); err == nil {
		t.Error("RecordCall succeeded during store outage")
	}

	// Once the store heals the persisted count must still be there, not a
	// zeroed counter overwritten during the outage.
	store.healed = true
	stats := tracker.UsageStats(ctx)
	if stats.CallsThisMonth != 98 {
		t.Errorf("calls after recovery = %d, want 98", stats.CallsThisMonth)
	}
	if tracker.IsLimitReached(ctx) {
		t.Error("limit reached at 98/100 after recovery")
	}
}

func TestMalformedDocumentStartsFresh(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	_ = store.Save(ctx, documentName, []byte("{not json"))

	tracker := NewTracker(store, 100)
	tracker.nowFn = fixedNow("2025-03-10T10:00:00Z")

	stats := tracker.UsageStats(ctx)
	if stats.CallsThisMonth != 0 || stats.CurrentMonth != 3 {
		t.Errorf("stats from malformed document = %+v", stats)
	}
}
