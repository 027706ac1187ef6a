package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrSolver marks a response-level failure: the service answered
	// with status "error". Fatal to the cycle.
	ErrSolver = errors.New("solver returned error status")
	// ErrSolverTransport marks HTTP, timeout or connection failures,
	// distinguishable from response-level errors. Also cycle-fatal.
	ErrSolverTransport = errors.New("solver transport failure")
)

const defaultTimeout = 120 * time.Second

// Client sends solve requests over HTTP. The circuit breaker sits at
// the boundary; the planning core still sees one attempt per pass.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Response]
	logger     *slog.Logger
	timeout    time.Duration
}

// NewClient creates a solver client. The timeout bounds each call's
// wall clock; zero selects the 120s default.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	settings := gobreaker.Settings{
		Name:    "solver",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"service", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		breaker:    gobreaker.NewCircuitBreaker[*Response](settings),
		logger:     logger,
		timeout:    timeout,
	}
}

// Solve submits the request and classifies the outcome. Success and
// partial responses are returned as-is; everything else is an error
// wrapping ErrSolver or ErrSolverTransport.
func (c *Client) Solve(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.solve(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrSolverTransport, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) solve(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding solve request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/solve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrSolverTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolverTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSolverTransport, httpResp.StatusCode, msg)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSolverTransport, err)
	}

	switch resp.Status {
	case StatusSuccess, StatusPartial:
		return &resp, nil
	case StatusError:
		return nil, fmt.Errorf("%w: %s", ErrSolver, resp.Message)
	default:
		return nil, fmt.Errorf("%w: unexpected status %q", ErrSolver, resp.Status)
	}
}
