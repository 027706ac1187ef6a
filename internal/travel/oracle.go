// Package travel resolves street-distance durations between coordinate
// pairs and assembles them into solver travel matrices. Durations come
// from an external routing service and are memoized process-locally
// (optionally shared through Redis) with a TTL.
package travel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
)

// ErrNoRoute is returned when the routing service cannot produce a
// duration for a pair. Callers substitute the penalty value.
var ErrNoRoute = errors.New("no route between coordinates")

// Oracle answers "how many seconds to drive from origin to destination".
type Oracle interface {
	DurationSeconds(ctx context.Context, origin, destination domain.Coordinate) (int64, error)
}

// HTTPOracle queries an OSRM-compatible routing endpoint.
type HTTPOracle struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPOracle creates an oracle against an OSRM-style service. The
// timeout bounds each request; failures surface as errors, never hangs.
func NewHTTPOracle(baseURL string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPOracle{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// DurationSeconds implements Oracle.
func (o *HTTPOracle) DurationSeconds(ctx context.Context, origin, destination domain.Coordinate) (int64, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		o.baseURL, origin.Lng, origin.Lat, destination.Lng, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building route request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("routing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("routing service returned status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding route response: %w", err)
	}

	if body.Code != "Ok" || len(body.Routes) == 0 {
		return 0, ErrNoRoute
	}

	return int64(body.Routes[0].Duration), nil
}
