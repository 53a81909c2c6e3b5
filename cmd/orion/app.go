package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/config"
	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/identity"
	"github.com/ArielSltty/Orion/internal/lifecycle"
	"github.com/ArielSltty/Orion/internal/rpc"
)

// app wires the client side components for one command run.
type app struct {
	rpc       *rpc.Client
	gate      *identity.Gate
	lifecycle *lifecycle.Client
}

// newApp builds the client from cfg. progress, when non-nil, receives a
// line for every observed status change.
func newApp(cfg *config.Config, logger *zap.Logger, progress io.Writer) *app {
	rpcClient := rpc.NewClient(cfg.Client.ServiceURL,
		rpc.WithTimeout(cfg.Client.RequestTimeout),
		rpc.WithMaxRetries(cfg.Client.MaxRetries),
		rpc.WithRetryDelay(cfg.Client.RetryDelay),
		rpc.WithLogger(logger.Named("rpc")),
	)

	gate := identity.NewGate(newProvider(cfg.Identity, logger), identity.NewSession(),
		identity.WithGateLogger(logger))

	opts := []lifecycle.Option{
		lifecycle.WithAuthenticator(gate),
		lifecycle.WithWatcher(rpc.NewStatusWatcher(cfg.Client.ServiceURL, nil, logger.Named("feed"))),
		lifecycle.WithLogger(logger),
	}
	if progress != nil {
		opts = append(opts, lifecycle.WithStatusHook(statusPrinter(progress)))
	}

	client := lifecycle.New(rpcClient, lifecycle.Config{
		SimulationType:    domain.SimulationTypeMonteCarlo,
		PollInterval:      cfg.Client.PollInterval,
		MaxAttempts:       cfg.Client.MaxAttempts,
		NotFoundTolerance: cfg.Client.NotFoundTolerance,
	}, opts...)

	return &app{rpc: rpcClient, gate: gate, lifecycle: client}
}

// authenticated returns ctx carrying the caller principal, prompting for a
// login if needed.
func (a *app) authenticated(ctx context.Context) (context.Context, error) {
	principal, err := a.gate.EnsureAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	return rpc.WithCaller(ctx, principal.String()), nil
}

// newProvider selects the identity provider named in cfg.
func newProvider(cfg config.IdentityConfig, logger *zap.Logger) identity.Provider {
	if cfg.Provider == config.ProviderBrowser {
		p := identity.NewBrowserProvider(logger)
		p.ProviderURL = cfg.ProviderURL
		p.CallbackAddr = cfg.CallbackAddr
		p.Timeout = cfg.LoginTimeout
		p.Open = func(loginURL string) error {
			fmt.Printf("Opening %s to log in...\n", loginURL)
			return identity.OpenBrowser(loginURL)
		}
		return p
	}
	return identity.NewKeyProvider(cfg.KeyFile, logger)
}

// statusPrinter prints each status once, in the order observed.
func statusPrinter(w io.Writer) func(*domain.SimulationRequest) {
	var last domain.RequestStatus
	return func(req *domain.SimulationRequest) {
		if req.Status == last {
			return
		}
		last = req.Status
		fmt.Fprintf(w, "%s: %s\n", req.ID, req.Status)
	}
}
