package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client calls the simulation service over HTTP JSON-RPC 2.0.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	agentToken  string
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transport failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAgentToken sends token in AgentTokenHeader, as the agent does when
// delivering results.
func WithAgentToken(token string) ClientOption {
	return func(c *Client) {
		c.agentToken = token
	}
}

// WithMetrics records call latency per method.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new simulation service client for endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableError marks transport failures worth another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// call performs a JSON-RPC call with retries and exponential backoff.
// Transport failures, 429 and 5xx are retried; JSON-RPC errors and other
// 4xx responses are returned immediately.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	start := time.Now()
	defer func() {
		c.metrics.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	rawParams := make([]json.RawMessage, len(params))
	for i, p := range params {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal param %d: %w", i, err)
		}
		rawParams[i] = data
	}

	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying rpc call",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		respBody, err := c.post(ctx, body)
		if err != nil {
			if _, ok := err.(*retryableError); !ok {
				return err
			}
			lastErr = err
			continue
		}

		var rpcResp Response
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// post sends one HTTP attempt and returns the body of a 200 response.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if caller := CallerFrom(ctx); caller != "" {
		req.Header.Set(PrincipalHeader, caller)
	}
	if c.agentToken != "" {
		req.Header.Set(AgentTokenHeader, c.agentToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &retryableError{fmt.Errorf("rate limited (429)")}
	case resp.StatusCode >= 500:
		return nil, &retryableError{fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))}
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
}

// SubmitSimulationRequest creates a request and returns its identifier.
func (c *Client) SubmitSimulationRequest(ctx context.Context, simType domain.SimulationType, params domain.SimulationParameters) (string, error) {
	var id string
	if err := c.call(ctx, MethodSubmitSimulationRequest, []any{simType, params}, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("service returned an empty request id")
	}
	return id, nil
}

// GetSimulationResult looks up a request.
// Returns nil, nil if the service does not know the identifier.
func (c *Client) GetSimulationResult(ctx context.Context, requestID string) (*domain.SimulationRequest, error) {
	var result *domain.SimulationRequest
	if err := c.call(ctx, MethodGetSimulationResult, []any{requestID}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ReceiveSimulationResult delivers an agent response to the service.
// Returns false if the service did not apply it.
func (c *Client) ReceiveSimulationResult(ctx context.Context, resp domain.SimulationResponse) (bool, error) {
	var applied bool
	if err := c.call(ctx, MethodReceiveSimulationResult, []any{resp}, &applied); err != nil {
		return false, err
	}
	return applied, nil
}

// SendChatMessage sends a chat message and returns the assistant's reply.
func (c *Client) SendChatMessage(ctx context.Context, msg domain.ChatMessage) (*domain.ChatResponse, error) {
	var reply domain.ChatResponse
	if err := c.call(ctx, MethodSendChatMessage, []any{msg}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// ListSimulationResults returns the caller's archived outcomes, newest first.
// The caller is taken from ctx (see WithCaller).
func (c *Client) ListSimulationResults(ctx context.Context, limit int) ([]*domain.SimulationRequest, error) {
	var results []*domain.SimulationRequest
	if err := c.call(ctx, MethodListSimulationResults, []any{limit}, &results); err != nil {
		return nil, err
	}
	return results, nil
}
