package flight

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		now       string
		departure string
		want      UpdateTier
	}{
		{"exactly six hours out", "2025-01-01T00:00:00Z", "2025-01-01T06:00:00Z", TierHourly},
		{"one second past six hours", "2025-01-01T00:00:00Z", "2025-01-01T06:00:01Z", TierThriceDaily},
		{"departing now", "2025-01-01T12:00:00Z", "2025-01-01T12:00:00Z", TierHourly},
		{"later today beyond six hours", "2025-01-01T00:00:00Z", "2025-01-01T23:00:00Z", TierThriceDaily},
		{"exactly three days out", "2025-01-01T00:00:00Z", "2025-01-04T00:00:00Z", TierThriceDaily},
		{"four days out", "2025-01-01T00:00:00Z", "2025-01-05T00:00:00Z", TierDaily},
		{"two weeks out", "2025-01-01T00:00:00Z", "2025-01-15T09:30:00Z", TierDaily},
		{"departed earlier today", "2025-01-01T12:00:00Z", "2025-01-01T08:00:00Z", TierNone},
		{"departed yesterday", "2025-01-02T12:00:00Z", "2025-01-01T08:00:00Z", TierNone},
		{"departed four days ago", "2025-01-05T00:00:00Z", "2025-01-01T00:00:00Z", TierNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(mustTime(t, tc.now), mustTime(t, tc.departure))
			if got != tc.want {
				t.Errorf("Classify(%s, %s) = %s, want %s", tc.now, tc.departure, got, tc.want)
			}
		})
	}
}

// Urgency must never decrease as the departure approaches, until the
// departure has passed.
func TestClassifyMonotoneUrgency(t *testing.T) {
	departure := mustTime(t, "2025-06-15T14:00:00Z")
	prev := TierNone
	for lead := 240 * time.Hour; lead >= 0; lead -= 30 * time.Minute {
		now := departure.Add(-lead)
		tier := Classify(now, departure)
		if tier < prev {
			t.Fatalf("urgency decreased from %s to %s at lead %s", prev, tier, lead)
		}
		prev = tier
	}
	if got := Classify(departure.Add(time.Minute), departure); got != TierNone {
		t.Errorf("tier after departure = %s, want %s", got, TierNone)
	}
}

func TestDaysUntil(t *testing.T) {
	tests := []struct {
		now       string
		departure string
		want      int
	}{
		{"2025-01-01T23:59:00Z", "2025-01-01T00:01:00Z", 0},
		{"2025-01-01T00:00:00Z", "2025-01-02T00:00:00Z", 1},
		{"2025-01-01T12:00:00Z", "2025-01-04T06:00:00Z", 3},
		{"2025-01-05T00:00:00Z", "2025-01-01T00:00:00Z", -4},
		{"2025-01-31T22:00:00Z", "2025-02-01T02:00:00Z", 1},
		{"2024-12-31T12:00:00Z", "2025-01-01T12:00:00Z", 1},
	}
	for _, tc := range tests {
		got := DaysUntil(mustTime(t, tc.now), mustTime(t, tc.departure))
		if got != tc.want {
			t.Errorf("DaysUntil(%s, %s) = %d, want %d", tc.now, tc.departure, got, tc.want)
		}
	}
}

func TestParseDeparture(t *testing.T) {
	ts, err := ParseDeparture("2025-06-01")
	if err != nil {
		t.Fatalf("ParseDeparture failed: %v", err)
	}
	if !ts.Equal(mustTime(t, "2025-06-01T00:00:00Z")) {
		t.Errorf("date-only parse = %s, want midnight UTC", ts)
	}

	ts, err = ParseDeparture("2025-06-01T08:45:00+02:00")
	if err != nil {
		t.Fatalf("ParseDeparture RFC3339 failed: %v", err)
	}
	if !ts.Equal(mustTime(t, "2025-06-01T06:45:00Z")) {
		t.Errorf("RFC3339 parse = %s, want 06:45 UTC", ts)
	}

	if _, err := ParseDeparture("not-a-date"); err == nil {
		t.Error("expected error for malformed date")
	}
	if _, err := ParseDeparture(""); err == nil {
		t.Error("expected error for empty date")
	}
}

func TestCacheKey(t *testing.T) {
	f := TrackedFlight{FlightIata: "AA123", Date: "2025-06-01"}
	if f.Key() != "AA123_2025-06-01" {
		t.Errorf("unexpected key %q", f.Key())
	}
}
