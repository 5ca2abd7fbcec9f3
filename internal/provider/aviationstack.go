package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/tripkeeper/tripkeeper/internal/flight"
)

const defaultBaseURL = "https://api.aviationstack.com/v1"

// AviationStackClient implements Client against the aviationstack REST API.
type AviationStackClient struct {
	httpClient *http.Client
	baseURL    string
	accessKey  string
	timeout    time.Duration
}

// NewAviationStackClient builds a client. An empty baseURL selects the public
// endpoint; timeout <= 0 selects DefaultTimeout.
func NewAviationStackClient(accessKey, baseURL string, timeout time.Duration) *AviationStackClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &AviationStackClient{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		accessKey:  accessKey,
		timeout:    timeout,
	}
}

// Configured reports whether an access key is present.
func (c *AviationStackClient) Configured() bool {
	return c != nil && c.accessKey != ""
}

// FetchStatus requests the live status of one flight occurrence. Every error
// it returns carries a Category so the caller can log the specific reason.
func (c *AviationStackClient) FetchStatus(ctx context.Context, flightIata, date string) (*FlightStatus, error) {
	if c == nil {
		return nil, &Error{Category: CategoryTransport, Message: "client not initialized"}
	}
	if c.accessKey == "" {
		return nil, &Error{Category: CategoryUnauthorized, Message: "missing access key"}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Itineraries may carry a full departure instant; the API only accepts a
	// calendar date.
	queryDate := date
	if dep, err := flight.ParseDeparture(date); err == nil {
		queryDate = dep.UTC().Format("2006-01-02")
	}

	query := url.Values{}
	query.Set("access_key", c.accessKey)
	query.Set("flight_iata", flightIata)
	query.Set("flight_date", queryDate)
	endpoint := c.baseURL + "/flights?" + query.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Category: CategoryTransport, Message: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Category: CategoryTransport, Message: fmt.Sprintf("request timed out after %s", c.timeout)}
		}
		return nil, &Error{Category: CategoryTransport, Message: err.Error()}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("provider: close response body error: %v", errClose)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Category: CategoryTransport, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Category: CategoryUnauthorized, StatusCode: resp.StatusCode, Message: summarizePayload(payload)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Category: CategoryRateLimited, StatusCode: resp.StatusCode, Message: summarizePayload(payload)}
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, &Error{Category: CategoryTransport, StatusCode: resp.StatusCode, Message: summarizePayload(payload)}
	}

	// aviationstack reports some failures inside a 200 body.
	if errCode := gjson.GetBytes(payload, "error.code").String(); errCode != "" {
		return nil, classifyBodyError(errCode, gjson.GetBytes(payload, "error.message").String())
	}

	data := gjson.GetBytes(payload, "data")
	if !data.Exists() || len(data.Array()) == 0 {
		return nil, &Error{Category: CategoryNotFound, Message: fmt.Sprintf("no data for flight %s on %s", flightIata, date)}
	}
	return parseFlight(data.Array()[0]), nil
}

func classifyBodyError(code, message string) *Error {
	switch code {
	case "invalid_access_key", "missing_access_key", "inactive_user":
		return &Error{Category: CategoryUnauthorized, Message: fmt.Sprintf("%s: %s", code, message)}
	case "usage_limit_reached", "rate_limit_reached":
		return &Error{Category: CategoryRateLimited, Message: fmt.Sprintf("%s: %s", code, message)}
	default:
		return &Error{Category: CategoryTransport, Message: fmt.Sprintf("%s: %s", code, message)}
	}
}

func parseFlight(item gjson.Result) *FlightStatus {
	return &FlightStatus{
		FlightIata:         item.Get("flight.iata").String(),
		FlightDate:         item.Get("flight_date").String(),
		Airline:            item.Get("airline.name").String(),
		FlightStatusText:   item.Get("flight_status").String(),
		DepartureAirport:   item.Get("departure.airport").String(),
		DepartureScheduled: item.Get("departure.scheduled").String(),
		DepartureEstimated: item.Get("departure.estimated").String(),
		DepartureActual:    item.Get("departure.actual").String(),
		DepartureGate:      item.Get("departure.gate").String(),
		DepartureTerminal:  item.Get("departure.terminal").String(),
		DepartureDelay:     item.Get("departure.delay").Int(),
		ArrivalAirport:     item.Get("arrival.airport").String(),
		ArrivalScheduled:   item.Get("arrival.scheduled").String(),
		ArrivalEstimated:   item.Get("arrival.estimated").String(),
		ArrivalActual:      item.Get("arrival.actual").String(),
		ArrivalGate:        item.Get("arrival.gate").String(),
		ArrivalTerminal:    item.Get("arrival.terminal").String(),
	}
}

func summarizePayload(payload []byte) string {
	const limit = 256
	if len(payload) > limit {
		return string(payload[:limit]) + "..."
	}
	return string(payload)
}
