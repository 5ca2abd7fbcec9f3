// Package flight defines the tracked-flight model and the update-tier
// classifier that decides how often a flight's status needs refreshing.
package flight

import (
	"fmt"
	"strings"
	"time"
)

// UpdateTier is the refresh urgency of a tracked flight, ordered by urgency.
type UpdateTier int

const (
	TierNone UpdateTier = iota
	TierDaily
	TierThriceDaily
	TierHourly
)

func (t UpdateTier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierDaily:
		return "daily"
	case TierThriceDaily:
		return "thrice-daily"
	case TierHourly:
		return "hourly"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// TrackedFlight is one flight occurrence under tracking. Instances are
// rebuilt fresh on every enumeration pass and never mutated in place.
type TrackedFlight struct {
	VacationID string     `json:"vacation_id"`
	FlightIata string     `json:"flight_iata"`
	Date       string     `json:"date"`
	Airline    string     `json:"airline"`
	Tier       UpdateTier `json:"-"`
}

// Key returns the stable cache key for this flight occurrence.
func (f TrackedFlight) Key() string {
	return CacheKey(f.FlightIata, f.Date)
}

// CacheKey builds the flight-occurrence key used by the status cache.
func CacheKey(flightIata, date string) string {
	return flightIata + "_" + date
}

// ParseDeparture parses a flight date into a departure instant. Both RFC 3339
// instants and plain calendar dates are accepted; a date-only value parses as
// midnight UTC.
func ParseDeparture(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, fmt.Errorf("flight: empty departure date")
	}
	if ts, err := time.Parse(time.RFC3339, date); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("flight: unparsable departure date %q: %w", date, err)
	}
	return ts, nil
}

// DaysUntil returns the number of calendar days between now's date and the
// departure's date, both taken in UTC. Two instants on the same calendar day
// yield 0 regardless of time of day; past days yield negative values.
func DaysUntil(now, departure time.Time) int {
	now = now.UTC()
	departure = departure.UTC()
	a := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(departure.Year(), departure.Month(), departure.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Classify maps a departure instant to an update tier relative to now.
// Rule order matters: a flight departing in at most six hours is hourly,
// otherwise day granularity decides. A departure already in the past falls
// through every branch to TierNone.
func Classify(now, departure time.Time) UpdateTier {
	hoursUntil := departure.Sub(now).Hours()
	daysUntil := DaysUntil(now, departure)
	switch {
	case hoursUntil >= 0 && hoursUntil <= 6:
		return TierHourly
	case hoursUntil >= 0 && daysUntil <= 3:
		return TierThriceDaily
	case daysUntil > 3:
		return TierDaily
	default:
		return TierNone
	}
}
