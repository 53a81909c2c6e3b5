package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/projection"
)

var historyLimit int

var statusCmd = &cobra.Command{
	Use:   "status [request-id]",
	Short: "Show the current state of a request",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch [request-id]",
	Short: "Follow a request until it completes or fails",
	Long: `Follows a request over the service's status feed and prints every
status change. If the feed is unavailable the command polls instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List your finished simulations",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logger, nil)
	req, err := a.lifecycle.Poll(ctx, args[0])
	if err != nil {
		return err
	}

	if req.Status.IsTerminal() {
		return renderOutcome(os.Stdout, req, jsonOutput)
	}
	if jsonOutput {
		return writeJSON(os.Stdout, req)
	}
	fmt.Printf("%s: %s (submitted %s)\n", req.ID, req.Status, formatTimestamp(req.Timestamp))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logger, os.Stderr)
	return finishOutcome(a.lifecycle.Follow(ctx, args[0]))
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logger, nil)
	callerCtx, err := a.authenticated(ctx)
	if err != nil {
		return err
	}

	reqs, err := a.rpc.ListSimulationResults(callerCtx, historyLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(os.Stdout, reqs)
	}
	if len(reqs) == 0 {
		fmt.Println("No finished simulations.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUEST\tSTATUS\tFINISHED\tOUTCOME")
	for _, req := range reqs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", req.ID, req.Status, formatTimestamp(finishedAt(req)), summarize(req))
	}
	return tw.Flush()
}

// summarize is the one-line form of a terminal request.
func summarize(req *domain.SimulationRequest) string {
	display, err := projection.Project(req)
	if err != nil {
		return "-"
	}
	switch d := display.(type) {
	case *projection.DisplayResult:
		return fmt.Sprintf("mean %s, std %s", d.MeanPrice, d.StdDev)
	case *projection.DisplayError:
		return d.Message
	}
	return "-"
}

func finishedAt(req *domain.SimulationRequest) int64 {
	if req.Result != nil {
		return req.Result.Timestamp
	}
	return 0
}

func formatTimestamp(ns int64) string {
	if ns == 0 {
		return "-"
	}
	return time.Unix(0, ns).Local().Format(time.DateTime)
}
