package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/identity"
	"github.com/ArielSltty/Orion/internal/rpc"
	"github.com/ArielSltty/Orion/internal/service"
)

// DefaultHistoryLimit applies when list_simulation_results gets no limit.
const DefaultHistoryLimit = 50

type methodFunc func(ctx context.Context, params []json.RawMessage) (any, *rpc.Error)

// JSONRPC serves the simulation service methods at a single endpoint.
type JSONRPC struct {
	svc     *service.Service
	logger  *zap.Logger
	methods map[string]methodFunc
}

// NewJSONRPC creates the JSON-RPC handler for svc.
func NewJSONRPC(svc *service.Service, logger *zap.Logger) *JSONRPC {
	h := &JSONRPC{svc: svc, logger: logger}
	h.methods = map[string]methodFunc{
		rpc.MethodSubmitSimulationRequest: h.submit,
		rpc.MethodGetSimulationResult:     h.get,
		rpc.MethodReceiveSimulationResult: h.receive,
		rpc.MethodSendChatMessage:         h.chat,
		rpc.MethodListSimulationResults:   h.list,
	}
	return h
}

// Handle is the gin handler for POST /rpc. Protocol errors are reported
// in the response body with HTTP 200.
func (h *JSONRPC) Handle(c *gin.Context) {
	var req rpc.Request
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusOK, errorResponse(0, rpc.CodeParseError, "parse error: "+err.Error()))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		c.JSON(http.StatusOK, errorResponse(req.ID, rpc.CodeInvalidRequest, "invalid request"))
		return
	}

	method, ok := h.methods[req.Method]
	if !ok {
		c.JSON(http.StatusOK, errorResponse(req.ID, rpc.CodeMethodNotFound, "method not found: "+req.Method))
		return
	}

	result, rpcErr := method(c.Request.Context(), req.Params)
	if rpcErr != nil {
		h.logger.Debug("rpc call rejected",
			zap.String("method", req.Method),
			zap.Int("code", rpcErr.Code),
			zap.String("message", rpcErr.Message))
		c.JSON(http.StatusOK, rpc.Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		c.JSON(http.StatusOK, errorResponse(req.ID, rpc.CodeInternalError, "encode result: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: raw})
}

func errorResponse(id uint64, code int, msg string) rpc.Response {
	return rpc.Response{JSONRPC: "2.0", ID: id, Error: &rpc.Error{Code: code, Message: msg}}
}

func invalidParams(format string, args ...any) *rpc.Error {
	return &rpc.Error{Code: rpc.CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func internalError(err error) *rpc.Error {
	return &rpc.Error{Code: rpc.CodeInternalError, Message: err.Error()}
}

// decodeParams unmarshals positional params into dst, one per slot.
func decodeParams(params []json.RawMessage, dst ...any) *rpc.Error {
	if len(params) != len(dst) {
		return invalidParams("expected %d params, got %d", len(dst), len(params))
	}
	for i, d := range dst {
		if err := json.Unmarshal(params[i], d); err != nil {
			return invalidParams("param %d: %v", i, err)
		}
	}
	return nil
}

// requireCaller returns the authenticated caller or an unauthorized error.
func requireCaller(ctx context.Context) (string, *rpc.Error) {
	caller := rpc.CallerFrom(ctx)
	if caller == "" || caller == string(identity.AnonymousPrincipal) {
		return "", &rpc.Error{Code: rpc.CodeUnauthorized, Message: "authentication required"}
	}
	return caller, nil
}

func (h *JSONRPC) submit(ctx context.Context, params []json.RawMessage) (any, *rpc.Error) {
	caller, rpcErr := requireCaller(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var simType domain.SimulationType
	var p domain.SimulationParameters
	if rpcErr := decodeParams(params, &simType, &p); rpcErr != nil {
		return nil, rpcErr
	}

	id, err := h.svc.Submit(ctx, caller, simType, p)
	if err != nil {
		var ute *service.UnsupportedTypeError
		if errors.As(err, &ute) || errors.Is(err, domain.ErrInvalidParameters) {
			return nil, invalidParams("%s", err.Error())
		}
		return nil, internalError(err)
	}
	return id, nil
}

func (h *JSONRPC) get(ctx context.Context, params []json.RawMessage) (any, *rpc.Error) {
	var id string
	if rpcErr := decodeParams(params, &id); rpcErr != nil {
		return nil, rpcErr
	}
	req, err := h.svc.Get(ctx, id)
	if err != nil {
		return nil, internalError(err)
	}
	return req, nil
}

func (h *JSONRPC) receive(ctx context.Context, params []json.RawMessage) (any, *rpc.Error) {
	if !fromAgent(ctx) {
		return nil, &rpc.Error{Code: rpc.CodeUnauthorized, Message: "agent token required"}
	}
	var resp domain.SimulationResponse
	if rpcErr := decodeParams(params, &resp); rpcErr != nil {
		return nil, rpcErr
	}
	if resp.RequestID == "" {
		return nil, invalidParams("request_id is required")
	}
	applied, err := h.svc.ReceiveResult(ctx, resp)
	if err != nil {
		return nil, internalError(err)
	}
	return applied, nil
}

func (h *JSONRPC) chat(ctx context.Context, params []json.RawMessage) (any, *rpc.Error) {
	var msg domain.ChatMessage
	if rpcErr := decodeParams(params, &msg); rpcErr != nil {
		return nil, rpcErr
	}
	return h.svc.Chat(ctx, msg), nil
}

func (h *JSONRPC) list(ctx context.Context, params []json.RawMessage) (any, *rpc.Error) {
	caller, rpcErr := requireCaller(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}

	limit := DefaultHistoryLimit
	if len(params) > 0 {
		if rpcErr := decodeParams(params, &limit); rpcErr != nil {
			return nil, rpcErr
		}
		if limit <= 0 {
			limit = DefaultHistoryLimit
		}
	}

	recs, err := h.svc.History(ctx, caller, limit)
	if err != nil {
		return nil, internalError(err)
	}
	out := make([]*domain.SimulationRequest, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Request())
	}
	return out, nil
}
