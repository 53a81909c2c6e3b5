package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/agent"
	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/observability"
	"github.com/ArielSltty/Orion/internal/rpc"
	"github.com/ArielSltty/Orion/internal/service"
	"github.com/ArielSltty/Orion/internal/storage/memory"
)

const testCaller = "w7x7r-cok77-xa"

type testServer struct {
	srv     *httptest.Server
	svc     *service.Service
	hub     *Hub
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithToken(t, "")
}

func newTestServerWithToken(t *testing.T, agentToken string) *testServer {
	t.Helper()
	m := observability.NewMetrics("test")
	hub := NewHub(m, nil)
	svc := service.New(service.Options{
		Store:     memory.NewRequestStore(),
		Archive:   memory.NewResultArchive(),
		Publisher: hub,
		Metrics:   m,
	})
	hub.SetService(svc)

	srv := httptest.NewServer(NewHandler(Options{Service: svc, Hub: hub, Metrics: m, AgentToken: agentToken}))
	t.Cleanup(srv.Close)
	t.Cleanup(svc.Close)
	t.Cleanup(hub.Close)
	return &testServer{srv: srv, svc: svc, hub: hub, metrics: m}
}

func (ts *testServer) client() *rpc.Client {
	return rpc.NewClient(ts.srv.URL+PathRPC, rpc.WithMaxRetries(0))
}

func callerCtx() context.Context {
	return rpc.WithCaller(context.Background(), testCaller)
}

// rawCall posts body to /rpc and decodes the JSON-RPC response.
func (ts *testServer) rawCall(t *testing.T, body string) rpc.Response {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+PathRPC, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out rpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) postCallback(t *testing.T, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+agent.CallbackPath, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestRPC_SubmitAndGet(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client()

	id, err := c.SubmitSimulationRequest(callerCtx(), domain.SimulationTypeMonteCarlo, domain.DefaultParameters())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	req, err := c.GetSimulationResult(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, id, req.ID)
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, domain.DefaultParameters(), req.Parameters)
	assert.Nil(t, req.Result)

	missing, err := c.GetSimulationResult(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRPC_SubmitErrors(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client()

	bad := domain.DefaultParameters()
	bad.Volatility = -0.2

	tests := []struct {
		name     string
		ctx      context.Context
		simType  domain.SimulationType
		params   domain.SimulationParameters
		wantCode int
		wantMsg  string
	}{
		{"no caller", context.Background(), domain.SimulationTypeMonteCarlo, domain.DefaultParameters(), rpc.CodeUnauthorized, "authentication required"},
		{"anonymous caller", rpc.WithCaller(context.Background(), "2vxsx-fae"), domain.SimulationTypeMonteCarlo, domain.DefaultParameters(), rpc.CodeUnauthorized, "authentication required"},
		{"invalid parameters", callerCtx(), domain.SimulationTypeMonteCarlo, bad, rpc.CodeInvalidParams, "volatility"},
		{"unsupported type", callerCtx(), "black_scholes", domain.DefaultParameters(), rpc.CodeInvalidParams, "Unsupported simulation type: black_scholes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.SubmitSimulationRequest(tt.ctx, tt.simType, tt.params)
			rpcErr, ok := rpc.AsError(err)
			require.True(t, ok, "want rpc error, got %v", err)
			assert.Equal(t, tt.wantCode, rpcErr.Code)
			assert.Contains(t, rpcErr.Message, tt.wantMsg)
		})
	}
}

func TestRPC_ProtocolErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"malformed json", `{"jsonrpc":`, rpc.CodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"get_simulation_result","params":["x"]}`, rpc.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":7,"method":"cancel_simulation","params":[]}`, rpc.CodeMethodNotFound},
		{"param count", `{"jsonrpc":"2.0","id":2,"method":"get_simulation_result","params":[]}`, rpc.CodeInvalidParams},
		{"param type", `{"jsonrpc":"2.0","id":3,"method":"get_simulation_result","params":[42]}`, rpc.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.rawCall(t, tt.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}

	resp := ts.rawCall(t, `{"jsonrpc":"2.0","id":7,"method":"nope"}`)
	assert.Equal(t, uint64(7), resp.ID)
}

func TestRPC_ReceiveAndList(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client()

	id, err := c.SubmitSimulationRequest(callerCtx(), domain.SimulationTypeMonteCarlo, domain.DefaultParameters())
	require.NoError(t, err)

	payload := `{"mean_price":105.2,"std_dev":12.4,"confidence_interval":[95.1,115.3]}`
	applied, err := c.ReceiveSimulationResult(context.Background(), domain.SimulationResponse{
		RequestID: id,
		Success:   true,
		Result:    &payload,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = c.ReceiveSimulationResult(context.Background(), domain.SimulationResponse{RequestID: id, Success: true})
	require.NoError(t, err)
	assert.False(t, applied, "terminal requests ignore later results")

	history, err := c.ListSimulationResults(callerCtx(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].ID)
	assert.Equal(t, domain.StatusCompleted, history[0].Status)
	assert.Equal(t, payload, *history[0].Result.Result)

	_, err = c.ListSimulationResults(context.Background(), 10)
	rpcErr, ok := rpc.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpc.CodeUnauthorized, rpcErr.Code)
}

func TestRPC_Chat(t *testing.T) {
	ts := newTestServer(t)

	reply, err := ts.client().SendChatMessage(context.Background(), domain.ChatMessage{
		SessionID: "session-1",
		Text:      "Can you run a Monte Carlo simulation?",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-1", reply.SessionID)
	assert.True(t, reply.RequiresParameters)
	require.NotNil(t, reply.ParameterTemplate)
	assert.Equal(t, domain.DefaultParameters(), *reply.ParameterTemplate)
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.ChatMessages))
}

func TestCallback(t *testing.T) {
	ts := newTestServer(t)

	id, err := ts.client().SubmitSimulationRequest(callerCtx(), domain.SimulationTypeMonteCarlo, domain.DefaultParameters())
	require.NoError(t, err)

	status, body := ts.postCallback(t, `{"request_id":"`+id+`","success":true,"result":{"mean_price":105.2,"std_dev":12.4,"confidence_interval":[95.1,115.3]},"signature":"agent-sig"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["applied"])

	req, err := ts.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, req.Status)
	assert.JSONEq(t, `{"mean_price":105.2,"std_dev":12.4,"confidence_interval":[95.1,115.3]}`, *req.Result.Result)
	assert.Equal(t, "agent-sig", *req.AgentSignature)

	status, body = ts.postCallback(t, `{"request_id":"`+id+`","success":false,"error":"late"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["applied"])
}

func TestCallback_Rejected(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"missing request id", `{"success":true}`, "MISSING_REQUEST_ID"},
		{"not json", `success`, "INVALID_CALLBACK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.postCallback(t, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			errBody, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, errBody["code"])
		})
	}
}

func TestResultDelivery_RequiresAgentToken(t *testing.T) {
	const token = "agent-s3cret"
	ts := newTestServerWithToken(t, token)

	id, err := ts.client().SubmitSimulationRequest(callerCtx(), domain.SimulationTypeMonteCarlo, domain.DefaultParameters())
	require.NoError(t, err)
	forged := `{"request_id":"` + id + `","success":false,"error":"forged"}`

	status, body := ts.postCallback(t, forged)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+agent.CallbackPath, strings.NewReader(forged))
	require.NoError(t, err)
	req.Header.Set(agent.TokenHeader, "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = ts.client().ReceiveSimulationResult(context.Background(), domain.SimulationResponse{RequestID: id})
	rpcErr, ok := rpc.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpc.CodeUnauthorized, rpcErr.Code)

	pending, err := ts.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status, "rejected deliveries change nothing")

	agentClient := rpc.NewClient(ts.srv.URL+PathRPC, rpc.WithMaxRetries(0), rpc.WithAgentToken(token))
	applied, err := agentClient.ReceiveSimulationResult(context.Background(), domain.SimulationResponse{RequestID: id, Success: true})
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestCallback_WithAgentToken(t *testing.T) {
	const token = "agent-s3cret"
	ts := newTestServerWithToken(t, token)

	id, err := ts.client().SubmitSimulationRequest(callerCtx(), domain.SimulationTypeMonteCarlo, domain.DefaultParameters())
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+agent.CallbackPath,
		strings.NewReader(`{"request_id":"`+id+`","success":false,"error":"agent crashed"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(agent.TokenHeader, token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := ts.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
}

func fastWatchConfig() *rpc.WatchConfig {
	return &rpc.WatchConfig{
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		MaxReconnects:     0,
		ReadTimeout:       time.Second,
		HandshakeTimeout:  time.Second,
	}
}

func TestStatusFeed_FollowsToTerminal(t *testing.T) {
	ts := newTestServer(t)

	id, err := ts.client().SubmitSimulationRequest(callerCtx(), domain.SimulationTypeMonteCarlo, domain.DefaultParameters())
	require.NoError(t, err)

	watcher := rpc.NewStatusWatcher(ts.srv.URL+PathRPC, fastWatchConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type outcome struct {
		req *domain.SimulationRequest
		err error
	}
	done := make(chan outcome, 1)
	var seen []domain.RequestStatus
	go func() {
		req, err := watcher.Watch(ctx, id, func(r *domain.SimulationRequest) {
			seen = append(seen, r.Status)
		})
		done <- outcome{req, err}
	}()

	require.Eventually(t, func() bool { return ts.hub.Subscribers(id) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.StatusSubscribers))

	msg := "All parameters must be positive"
	applied, err := ts.svc.ReceiveResult(context.Background(), domain.SimulationResponse{RequestID: id, Error: &msg})
	require.NoError(t, err)
	require.True(t, applied)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, domain.StatusFailed, got.req.Status)
	assert.Equal(t, msg, *got.req.Result.Error)
	assert.Equal(t, []domain.RequestStatus{domain.StatusPending, domain.StatusFailed}, seen)

	require.Eventually(t, func() bool { return ts.hub.Subscribers(id) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(0), testutil.ToFloat64(ts.metrics.StatusSubscribers))
}

func TestStatusFeed_TerminalSnapshot(t *testing.T) {
	ts := newTestServer(t)

	id, err := ts.client().SubmitSimulationRequest(callerCtx(), domain.SimulationTypeMonteCarlo, domain.DefaultParameters())
	require.NoError(t, err)
	_, err = ts.svc.ReceiveResult(context.Background(), domain.SimulationResponse{RequestID: id, Success: true})
	require.NoError(t, err)

	watcher := rpc.NewStatusWatcher(ts.srv.URL+PathRPC, fastWatchConfig(), nil)
	req, err := watcher.Watch(context.Background(), id, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, req.Status)
}

func TestStatusFeed_UnknownRequest(t *testing.T) {
	ts := newTestServer(t)

	watcher := rpc.NewStatusWatcher(ts.srv.URL+PathRPC, fastWatchConfig(), nil)
	_, err := watcher.Watch(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, rpc.ErrFeedUnknownRequest)
}

func TestHealthMetricsAndNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + PathHealth)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + PathMetric)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + "/nowhere")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+PathRPC, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", rpc.PrincipalHeader)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestErrorHandler_Panic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler(zap.NewNop()))
	router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ErrorDetail{Code: "INTERNAL_ERROR", Message: "kaboom"}, body.Error)
}
