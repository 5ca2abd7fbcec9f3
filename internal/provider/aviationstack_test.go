package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleResponse = `{
	"pagination": {"limit": 100, "offset": 0, "count": 1, "total": 1},
	"data": [{
		"flight_date": "2025-06-01",
		"flight_status": "scheduled",
		"departure": {
			"airport": "John F Kennedy International",
			"scheduled": "2025-06-01T08:30:00+00:00",
			"estimated": "2025-06-01T08:45:00+00:00",
			"gate": "B22",
			"terminal": "4",
			"delay": 15
		},
		"arrival": {
			"airport": "Los Angeles International",
			"scheduled": "2025-06-01T11:40:00+00:00",
			"gate": "148",
			"terminal": "5"
		},
		"airline": {"name": "American Airlines", "iata": "AA"},
		"flight": {"number": "123", "iata": "AA123"}
	}]
}`

func TestFetchStatus_Success(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"access_key":  r.URL.Query().Get("access_key"),
			"flight_iata": r.URL.Query().Get("flight_iata"),
			"flight_date": r.URL.Query().Get("flight_date"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client := NewAviationStackClient("test-key", srv.URL, time.Second)
	status, err := client.FetchStatus(context.Background(), "AA123", "2025-06-01")
	if err != nil {
		t.Fatalf("FetchStatus failed: %v", err)
	}

	if gotQuery["access_key"] != "test-key" || gotQuery["flight_iata"] != "AA123" || gotQuery["flight_date"] != "2025-06-01" {
		t.Errorf("unexpected query parameters: %v", gotQuery)
	}
	if status.FlightIata != "AA123" {
		t.Errorf("flight iata = %q", status.FlightIata)
	}
	if status.Airline != "American Airlines" {
		t.Errorf("airline = %q", status.Airline)
	}
	if status.DepartureGate != "B22" || status.DepartureTerminal != "4" {
		t.Errorf("gate/terminal = %q/%q", status.DepartureGate, status.DepartureTerminal)
	}
	if status.DepartureDelay != 15 {
		t.Errorf("delay = %d, want 15", status.DepartureDelay)
	}
}

func TestFetchStatus_NormalizesInstantDates(t *testing.T) {
	var gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDate = r.URL.Query().Get("flight_date")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client := NewAviationStackClient("test-key", srv.URL, time.Second)
	if _, err := client.FetchStatus(context.Background(), "AA123", "2025-06-01T02:00:00Z"); err != nil {
		t.Fatalf("FetchStatus failed: %v", err)
	}
	if gotDate != "2025-06-01" {
		t.Errorf("flight_date sent upstream = %q, want calendar date %q", gotDate, "2025-06-01")
	}
}

func TestFetchStatus_ErrorCategories(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    Category
	}{
		{
			"unauthorized status", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}, CategoryUnauthorized,
		},
		{
			"rate limited status", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			}, CategoryRateLimited,
		},
		{
			"server error", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}, CategoryTransport,
		},
		{
			"empty data", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"pagination":{"count":0},"data":[]}`))
			}, CategoryNotFound,
		},
		{
			"error in 200 body", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error":{"code":"usage_limit_reached","message":"monthly limit hit"}}`))
			}, CategoryRateLimited,
		},
		{
			"invalid key in 200 body", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error":{"code":"invalid_access_key","message":"bad key"}}`))
			}, CategoryUnauthorized,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := NewAviationStackClient("test-key", srv.URL, time.Second)
			_, err := client.FetchStatus(context.Background(), "AA123", "2025-06-01")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := ErrorCategory(err); got != tc.want {
				t.Errorf("category = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFetchStatus_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewAviationStackClient("test-key", srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := client.FetchStatus(context.Background(), "AA123", "2025-06-01")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := ErrorCategory(err); got != CategoryTransport {
		t.Errorf("category = %s, want %s", got, CategoryTransport)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout not bounded: took %s", elapsed)
	}
}

func TestFetchStatus_MissingKey(t *testing.T) {
	client := NewAviationStackClient("", "http://unused.invalid", time.Second)
	if client.Configured() {
		t.Error("expected Configured to be false without a key")
	}
	_, err := client.FetchStatus(context.Background(), "AA123", "2025-06-01")
	var pe *Error
	if !errors.As(err, &pe) || pe.Category != CategoryUnauthorized {
		t.Errorf("expected unauthorized error, got %v", err)
	}
}
