// Package rpc implements the JSON-RPC 2.0 wire protocol spoken between the
// Orion client and the simulation service, plus the websocket status feed.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ArielSltty/Orion/internal/domain"
)

// Method names of the simulation service.
const (
	MethodSubmitSimulationRequest = "submit_simulation_request"
	MethodGetSimulationResult     = "get_simulation_result"
	MethodReceiveSimulationResult = "receive_simulation_result"
	MethodSendChatMessage         = "send_chat_message"
	MethodListSimulationResults   = "list_simulation_results"
)

// PrincipalHeader carries the caller's principal on every request.
const PrincipalHeader = "X-Orion-Principal"

// AgentTokenHeader carries the shared secret that authorizes result delivery.
const AgentTokenHeader = "X-Agent-Token"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32001
)

// Request represents a JSON-RPC 2.0 request. Params are positional.
type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      uint64            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// AsError extracts a JSON-RPC error from err's chain.
func AsError(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

type callerKey struct{}

// WithCaller attaches the caller principal to ctx. The client sends it in
// PrincipalHeader; the server stores it back into the handler context.
func WithCaller(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, callerKey{}, principal)
}

// CallerFrom returns the principal attached by WithCaller, or "".
func CallerFrom(ctx context.Context) string {
	p, _ := ctx.Value(callerKey{}).(string)
	return p
}

// Status feed event types.
const (
	EventSnapshot = "snapshot"
	EventError    = "error"
)

// StatusEvent is one message on the websocket status feed.
type StatusEvent struct {
	Type    string                    `json:"type"`
	Request *domain.SimulationRequest `json:"request,omitempty"`
	Error   string                    `json:"error,omitempty"`
}
