// Package api exposes the simulation service over HTTP: the JSON-RPC
// endpoint, the agent result callback, the websocket status feed, health
// and metrics.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/agent"
	"github.com/ArielSltty/Orion/internal/observability"
	"github.com/ArielSltty/Orion/internal/rpc"
	"github.com/ArielSltty/Orion/internal/service"
)

// Route paths.
const (
	PathRPC    = "/rpc"
	PathFeed   = "/ws/requests/:id"
	PathHealth = "/health"
	PathMetric = "/metrics"
)

// Options contains configuration for creating the HTTP handler.
type Options struct {
	Service        *service.Service // required
	Hub            *Hub             // optional; without it the feed route is absent
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	AgentToken     string   // required on result deliveries when set
	AllowedOrigins []string // Default: all origins
	Debug          bool     // gin debug mode
}

// NewHandler builds the gin router wrapped in CORS.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(ErrorHandler(logger))
	router.Use(RequestLogger(logger))
	router.Use(Caller())
	router.Use(AgentToken(opts.AgentToken))

	router.GET(PathHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET(PathMetric, gin.WrapH(opts.Metrics.Handler()))
	}

	router.POST(PathRPC, NewJSONRPC(opts.Service, logger).Handle)
	router.POST(agent.CallbackPath, RequireAgent(), callbackHandler(opts.Service, logger))

	if opts.Hub != nil {
		router.GET(PathFeed, opts.Hub.ServeFeed)
	}

	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "Not found")
	})

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", rpc.PrincipalHeader},
	}).Handler(router)
}

// callbackHandler accepts agent results at agent.CallbackPath.
func callbackHandler(svc *service.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cb agent.Callback
		if err := c.ShouldBindJSON(&cb); err != nil {
			abortWithError(c, http.StatusBadRequest, "INVALID_CALLBACK", err.Error())
			return
		}

		resp, err := cb.Response()
		if err != nil {
			code := "INVALID_CALLBACK"
			if errors.Is(err, agent.ErrMissingRequestID) {
				code = "MISSING_REQUEST_ID"
			}
			abortWithError(c, http.StatusBadRequest, code, err.Error())
			return
		}

		applied, err := svc.ReceiveResult(c.Request.Context(), resp)
		if err != nil {
			logger.Error("apply agent result failed",
				zap.String("request_id", resp.RequestID),
				zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": resp.RequestID, "applied": applied})
	}
}
