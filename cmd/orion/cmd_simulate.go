package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/lifecycle"
	"github.com/ArielSltty/Orion/internal/projection"
)

var (
	presetFile string
	noWait     bool
	usePolling bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Submit a Monte Carlo simulation and wait for the result",
	Long: `Submits a Monte Carlo price simulation and waits for the agent to
finish it. Parameters come from flags, a YAML preset (--params) or both;
flags that are set explicitly win over the preset.

Example preset:
  initial_price: 100
  drift: 0.05
  volatility: 0.2
  time_horizon: 1
  time_steps: 252
  n_simulations: 1000`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	registerParamFlags(simulateCmd.Flags())
	simulateCmd.Flags().StringVar(&presetFile, "params", "", "YAML file with simulation parameters")
	simulateCmd.Flags().BoolVar(&noWait, "no-wait", false, "Print the request id and exit")
	simulateCmd.Flags().BoolVar(&usePolling, "poll", false, "Poll instead of following the status feed")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	params, err := resolveParams(cmd.Flags(), presetFile)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logger, os.Stderr)

	id, err := a.lifecycle.Submit(ctx, params)
	if err != nil {
		return err
	}
	logger.Info("simulation submitted", zap.String("request_id", id))
	if noWait {
		fmt.Println(id)
		return nil
	}
	fmt.Fprintf(os.Stderr, "Submitted %s, waiting for the result...\n", id)

	var req *domain.SimulationRequest
	if usePolling {
		req, err = a.lifecycle.Await(ctx, id)
	} else {
		req, err = a.lifecycle.Follow(ctx, id)
	}
	return finishOutcome(req, err)
}

// finishOutcome renders a terminal request. A service-side failure is
// shown as its display message rather than returned as a command error.
func finishOutcome(req *domain.SimulationRequest, err error) error {
	var failure *lifecycle.ServiceFailure
	if err != nil && !errors.As(err, &failure) {
		return err
	}
	if renderErr := renderOutcome(os.Stdout, req, jsonOutput); renderErr != nil {
		if errors.Is(renderErr, projection.ErrNotTerminal) {
			return fmt.Errorf("request %s is still %s", req.ID, req.Status)
		}
		return renderErr
	}
	if failure != nil {
		return reportedError{failure}
	}
	return nil
}
