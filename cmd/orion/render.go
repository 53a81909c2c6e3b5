package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/projection"
)

// renderOutcome prints the display form of a terminal request.
func renderOutcome(w io.Writer, req *domain.SimulationRequest, asJSON bool) error {
	display, err := projection.Project(req)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, display)
	}
	renderDisplay(w, display)
	return nil
}

func renderDisplay(w io.Writer, display projection.Display) {
	switch d := display.(type) {
	case *projection.DisplayResult:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Request\t%s\n", d.RequestID)
		fmt.Fprintf(tw, "Mean price\t%s\n", d.MeanPrice)
		fmt.Fprintf(tw, "Std deviation\t%s\n", d.StdDev)
		fmt.Fprintf(tw, "95%% interval\t%s\n", d.ConfidenceInterval)
		fmt.Fprintf(tw, "Signature\t%s\n", d.SignatureText())
		fmt.Fprintf(tw, "Parameters\t%s\n", describeParams(d.Parameters))
		tw.Flush()
	case *projection.DisplayError:
		fmt.Fprintf(w, "Request %s failed: %s\n", d.RequestID, d.Message)
	}
}

func describeParams(p domain.SimulationParameters) string {
	return fmt.Sprintf("S0=%g mu=%g sigma=%g T=%g steps=%d paths=%d",
		p.InitialPrice, p.Drift, p.Volatility, p.TimeHorizon, p.TimeSteps, p.NSimulations)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
