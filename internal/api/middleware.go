package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/agent"
	"github.com/ArielSltty/Orion/internal/rpc"
)

// ErrorResponse is the envelope for non JSON-RPC failures.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// ErrorHandler turns handler panics into a 500 with the error envelope.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("handler panic",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered))

		msg := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			msg = s
		}
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", msg)
	})
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Caller copies the principal header into the request context.
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p := c.GetHeader(rpc.PrincipalHeader); p != "" {
			c.Request = c.Request.WithContext(rpc.WithCaller(c.Request.Context(), p))
		}
		c.Next()
	}
}

type agentKey struct{}

// AgentToken marks requests carrying the shared agent token in
// agent.TokenHeader. With an empty token every request counts as the agent.
func AgentToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(agent.TokenHeader))
		if token == "" || subtle.ConstantTimeCompare(got, want) == 1 {
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), agentKey{}, true))
		}
		c.Next()
	}
}

func fromAgent(ctx context.Context) bool {
	ok, _ := ctx.Value(agentKey{}).(bool)
	return ok
}

// RequireAgent rejects requests that AgentToken did not mark.
func RequireAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !fromAgent(c.Request.Context()) {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "agent token required")
			return
		}
		c.Next()
	}
}
