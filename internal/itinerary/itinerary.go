// Package itinerary exposes the read-only view of the vacation store that
// the scheduler consumes, and derives the tracked-flight working set from it.
package itinerary

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tripkeeper/tripkeeper/internal/flight"
)

// Flight is one planned flight inside a vacation record.
type Flight struct {
	FlightNumber string `json:"flight_number"`
	Date         string `json:"date"`
	Airline      string `json:"airline"`
	Validated    bool   `json:"validated"`
}

// Vacation is one planned absence with its flights.
type Vacation struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	TrackingEnabled bool     `json:"tracking_enabled"`
	Flights         []Flight `json:"flights"`
}

// Source lists the vacation records eligible for flight tracking.
type Source interface {
	ListTrackedCandidates(ctx context.Context) ([]Vacation, error)
}

// trackingCutoffDays drops flights more than one day past from the working
// set entirely, bounding its size over time.
const trackingCutoffDays = -1

// Enumerate derives the current working set of tracked flights, each
// annotated with its update tier as of now. A failing or malformed source
// yields an empty set and a warning, never an error into the orchestrator.
func Enumerate(ctx context.Context, source Source, now time.Time) []flight.TrackedFlight {
	if source == nil {
		return nil
	}
	vacations, err := source.ListTrackedCandidates(ctx)
	if err != nil {
		log.WithError(err).Warn("itinerary: listing tracked candidates failed, skipping enumeration")
		return nil
	}

	var tracked []flight.TrackedFlight
	for _, vacation := range vacations {
		if !vacation.TrackingEnabled || len(vacation.Flights) == 0 {
			continue
		}
		for _, fl := range vacation.Flights {
			if !fl.Validated {
				continue
			}
			departure, err := flight.ParseDeparture(fl.Date)
			if err != nil {
				log.Warnf("itinerary: skipping flight %s in vacation %s: %v", fl.FlightNumber, vacation.ID, err)
				continue
			}
			if flight.DaysUntil(now, departure) < trackingCutoffDays {
				continue
			}
			tracked = append(tracked, flight.TrackedFlight{
				VacationID: vacation.ID,
				FlightIata: fl.FlightNumber,
				Date:       fl.Date,
				Airline:    fl.Airline,
				Tier:       flight.Classify(now, departure),
			})
		}
	}
	return tracked
}
