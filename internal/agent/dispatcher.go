// Package agent talks to the external computation agent: it forwards
// pending requests and decodes the results the agent posts back.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/observability"
	"github.com/ArielSltty/Orion/internal/rpc"
)

// CallbackPath is where the agent posts results, relative to the public URL.
const CallbackPath = "/callback/simulation-result"

// TokenHeader carries the shared agent token on tasks and on results.
const TokenHeader = rpc.AgentTokenHeader

// Default dispatch settings.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
	DefaultTimeout    = 30 * time.Second
)

// Task is the job description sent to the agent.
type Task struct {
	SimulationType string                      `json:"simulation_type"`
	Parameters     domain.SimulationParameters `json:"parameters"`
	RequestID      string                      `json:"request_id"`
	CallbackURL    string                      `json:"callback_url"`
}

// Config configures Dispatcher.
type Config struct {
	Endpoint    string // agent task URL
	CallbackURL string // absolute URL of the result callback
	Token       string // shared secret sent in TokenHeader; the agent echoes it on callbacks
	MaxRetries  int    // 0 takes DefaultMaxRetries; negative disables retries
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration
}

// Dispatcher posts tasks to the agent with bounded retries.
type Dispatcher struct {
	config  Config
	client  *http.Client
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher. Zero config fields take defaults.
func NewDispatcher(cfg Config, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: metrics,
		logger:  logger.Named("agent"),
	}
}

// CallbackURL joins the service's public URL with CallbackPath.
func CallbackURL(publicURL string) string {
	return strings.TrimSuffix(publicURL, "/") + CallbackPath
}

// Dispatch sends req to the agent. Network failures, 429 and 5xx are
// retried with exponential backoff; other responses fail at once.
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.SimulationRequest) error {
	body, err := json.Marshal(Task{
		SimulationType: req.SimulationType.String(),
		Parameters:     req.Parameters,
		RequestID:      req.ID,
		CallbackURL:    d.config.CallbackURL,
	})
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	delay := d.config.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			d.metrics.RecordDispatch("retry")
			d.logger.Debug("retrying dispatch",
				zap.String("request_id", req.ID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				d.metrics.RecordDispatch("failed")
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
			if delay > d.config.MaxDelay {
				delay = d.config.MaxDelay
			}
		}

		retry, err := d.post(ctx, body)
		if err == nil {
			d.metrics.RecordDispatch("ok")
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	d.metrics.RecordDispatch("failed")
	return lastErr
}

// post performs one attempt and reports whether a failure is worth retrying.
func (d *Dispatcher) post(ctx context.Context, body []byte) (retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.config.Token != "" {
		httpReq.Header.Set(TokenHeader, d.config.Token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, err
}
