package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/observability"
)

func pendingRequest() *domain.SimulationRequest {
	return &domain.SimulationRequest{
		ID:             "abc123",
		Status:         domain.StatusPending,
		Parameters:     domain.DefaultParameters(),
		SimulationType: domain.SimulationTypeMonteCarlo,
	}
}

func TestDispatcher_PostsTask(t *testing.T) {
	var got Task
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "s3cret", r.Header.Get(TokenHeader))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	m := observability.NewMetrics("test")
	d := NewDispatcher(Config{
		Endpoint:    server.URL,
		CallbackURL: CallbackURL("http://orion.local:8080/"),
		Token:       "s3cret",
	}, m, nil)

	require.NoError(t, d.Dispatch(context.Background(), pendingRequest()))

	assert.Equal(t, Task{
		SimulationType: "monte_carlo",
		Parameters:     domain.DefaultParameters(),
		RequestID:      "abc123",
		CallbackURL:    "http://orion.local:8080/callback/simulation-result",
	}, got)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchAttempts.WithLabelValues("ok")))
}

func TestDispatcher_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(Config{Endpoint: server.URL, MaxRetries: 3, RetryDelay: time.Millisecond}, nil, nil)

	require.NoError(t, d.Dispatch(context.Background(), pendingRequest()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDispatcher_GivesUp(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := observability.NewMetrics("test")
	d := NewDispatcher(Config{Endpoint: server.URL, MaxRetries: 2, RetryDelay: time.Millisecond}, m, nil)

	err := d.Dispatch(context.Background(), pendingRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchAttempts.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DispatchAttempts.WithLabelValues("retry")))
}

func TestDispatcher_RetryDefaults(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		attempts   int32
	}{
		{"zero takes the default", 0, DefaultMaxRetries + 1},
		{"negative disables retries", -1, 1},
		{"explicit", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			d := NewDispatcher(Config{Endpoint: server.URL, MaxRetries: tt.maxRetries, RetryDelay: time.Millisecond}, nil, nil)
			require.Error(t, d.Dispatch(context.Background(), pendingRequest()))
			assert.Equal(t, tt.attempts, attempts.Load())
		})
	}
}

func TestDispatcher_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad task", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	d := NewDispatcher(Config{Endpoint: server.URL, MaxRetries: 3, RetryDelay: time.Millisecond}, nil, nil)

	err := d.Dispatch(context.Background(), pendingRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad task")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDispatcher_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDispatcher(Config{Endpoint: server.URL, MaxRetries: 10, RetryDelay: time.Second}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Dispatch(ctx, pendingRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallback_Response(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantResult *string
		wantErr    bool
	}{
		{
			name:       "object result",
			body:       `{"request_id":"abc123","success":true,"result":{"mean_price": 105.2, "std_dev": 12.4},"signature":"sig"}`,
			wantResult: strPtr(`{"mean_price":105.2,"std_dev":12.4}`),
		},
		{
			name:       "string result",
			body:       `{"request_id":"abc123","success":true,"result":"{\"mean_price\":1}"}`,
			wantResult: strPtr(`{"mean_price":1}`),
		},
		{
			name: "null result",
			body: `{"request_id":"abc123","success":false,"result":null,"error":"All parameters must be positive"}`,
		},
		{
			name: "absent result",
			body: `{"request_id":"abc123","success":false}`,
		},
		{
			name:    "missing request id",
			body:    `{"success":true}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cb Callback
			require.NoError(t, json.Unmarshal([]byte(tt.body), &cb))

			resp, err := cb.Response()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingRequestID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "abc123", resp.RequestID)
			assert.Equal(t, tt.wantResult, resp.Result)
		})
	}
}

func strPtr(s string) *string {
	return &s
}
