package solver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRequest() *Request {
	return &Request{
		Items: []Item{{ID: "job_1", LocationIndex: 1, DurationSeconds: 3600, Priority: 5}},
	}
}

func TestSolveSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/solve", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Items, 1)

		json.NewEncoder(w).Encode(Response{
			Status: StatusSuccess,
			Routes: []Route{{TechnicianID: 1, Stops: []Stop{{ItemID: "job_1", StartTimeISO: "2025-03-10T10:00:00Z"}}}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, testLogger())
	resp, err := client.Solve(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	require.Len(t, resp.Routes, 1)
}

func TestSolvePartialIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{
			Status:            StatusPartial,
			UnassignedItemIDs: []string{"job_1"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, testLogger())
	resp, err := client.Solve(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, resp.Status)
	assert.Equal(t, []string{"job_1"}, resp.UnassignedItemIDs)
}

func TestSolveErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Status: StatusError, Message: "infeasible"})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, testLogger())
	_, err := client.Solve(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSolver)
	assert.NotErrorIs(t, err, ErrSolverTransport)
	assert.Contains(t, err.Error(), "infeasible")
}

func TestSolveUnknownStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"wat"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, testLogger())
	_, err := client.Solve(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrSolver)
}

func TestSolveHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, testLogger())
	_, err := client.Solve(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSolverTransport)
}

func TestSolveTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, 20*time.Millisecond, testLogger())
	_, err := client.Solve(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrSolverTransport)
}

func TestSolveBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, testLogger())
	for i := 0; i < 3; i++ {
		_, err := client.Solve(context.Background(), sampleRequest())
		require.Error(t, err)
	}

	// Fourth call is rejected without reaching the service.
	_, err := client.Solve(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrSolverTransport)
	assert.Equal(t, 3, hits)
}
