// Package provider talks to the upstream flight-data API. The scheduler only
// depends on the Client interface; the wire format stays in here.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FlightStatus is the latest known state of one flight occurrence.
type FlightStatus struct {
	FlightIata         string `json:"flight_iata"`
	FlightDate         string `json:"flight_date"`
	Airline            string `json:"airline"`
	FlightStatusText   string `json:"flight_status"`
	DepartureAirport   string `json:"departure_airport"`
	DepartureScheduled string `json:"departure_scheduled"`
	DepartureEstimated string `json:"departure_estimated"`
	DepartureActual    string `json:"departure_actual"`
	DepartureGate      string `json:"departure_gate"`
	DepartureTerminal  string `json:"departure_terminal"`
	DepartureDelay     int64  `json:"departure_delay"`
	ArrivalAirport     string `json:"arrival_airport"`
	ArrivalScheduled   string `json:"arrival_scheduled"`
	ArrivalEstimated   string `json:"arrival_estimated"`
	ArrivalActual      string `json:"arrival_actual"`
	ArrivalGate        string `json:"arrival_gate"`
	ArrivalTerminal    string `json:"arrival_terminal"`
}

// Client fetches the live status of a flight occurrence.
type Client interface {
	FetchStatus(ctx context.Context, flightIata, date string) (*FlightStatus, error)
}

// Category distinguishes upstream failure classes. The flight updater logs
// them differently but falls back to cached data for all of them.
type Category string

const (
	CategoryUnauthorized Category = "unauthorized"
	CategoryRateLimited  Category = "rate_limited"
	CategoryNotFound     Category = "not_found"
	CategoryTransport    Category = "transport"
)

// Error is a categorized upstream failure.
type Error struct {
	Category   Category
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider: %s (status=%d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider: %s: %s", e.Category, e.Message)
}

// ErrorCategory extracts the failure category; unknown errors (timeouts,
// connection resets) count as transport failures.
func ErrorCategory(err error) Category {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryTransport
}

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 20 * time.Second
