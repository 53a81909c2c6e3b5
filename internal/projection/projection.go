// Package projection turns a terminal simulation request into display values.
// It is pure: nothing is fetched and nothing is recomputed.
package projection

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ArielSltty/Orion/internal/domain"
)

// GenericFailureMessage is shown when the service reports a failure without details.
const GenericFailureMessage = "Simulation failed: no error details were provided"

// PendingSignature is shown in place of a missing agent signature.
const PendingSignature = "Pending..."

// displayPlaces is the number of decimals shown for every figure.
const displayPlaces = 2

// ErrNotTerminal is returned for requests that are still pending or processing.
var ErrNotTerminal = errors.New("request has not reached a terminal status")

// Display is either *DisplayResult or *DisplayError.
type Display interface {
	isDisplay()
}

// DisplayResult holds the figures of a completed simulation.
type DisplayResult struct {
	RequestID          string                      `json:"request_id"`
	MeanPrice          string                      `json:"mean_price"`
	StdDev             string                      `json:"std_dev"`
	ConfidenceInterval string                      `json:"confidence_interval"`
	Parameters         domain.SimulationParameters `json:"parameters"`
	Signature          *string                     `json:"signature,omitempty"`
}

// SignatureText returns the signature or PendingSignature when absent.
func (r *DisplayResult) SignatureText() string {
	if r.Signature == nil || *r.Signature == "" {
		return PendingSignature
	}
	return *r.Signature
}

// DisplayError is the message shown for a failed simulation.
type DisplayError struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

func (*DisplayResult) isDisplay() {}
func (*DisplayError) isDisplay()  {}

// Project maps a terminal request to its display form.
//
// success is authoritative: a completed request whose result reports
// success=false, carries no payload or carries an unreadable payload is
// shown as an error rather than as figures.
func Project(req *domain.SimulationRequest) (Display, error) {
	if req == nil || !req.Status.IsTerminal() {
		return nil, ErrNotTerminal
	}

	res := req.Result
	if req.Status == domain.StatusFailed || res == nil || !res.Success {
		return failure(req.ID, res, ""), nil
	}
	if res.Result == nil {
		return failure(req.ID, res, "Simulation completed without a result payload"), nil
	}

	summary, err := domain.ParseSummary(*res.Result)
	if err != nil {
		return failure(req.ID, res, fmt.Sprintf("Simulation result could not be read: %v", err)), nil
	}

	return &DisplayResult{
		RequestID:          req.ID,
		MeanPrice:          Format(summary.MeanPrice),
		StdDev:             Format(summary.StdDev),
		ConfidenceInterval: FormatInterval(summary.ConfidenceInterval),
		Parameters:         req.Parameters,
		Signature:          req.AgentSignature,
	}, nil
}

// failure prefers the service message, then fallback, then the generic text.
func failure(id string, res *domain.SimulationResult, fallback string) *DisplayError {
	msg := fallback
	if res != nil && res.Error != nil && *res.Error != "" {
		msg = *res.Error
	}
	if msg == "" {
		msg = GenericFailureMessage
	}
	return &DisplayError{RequestID: id, Message: msg}
}

// Format renders d with two decimals, e.g. 105.2 -> "105.20".
func Format(d decimal.Decimal) string {
	return d.StringFixed(displayPlaces)
}

// FormatInterval renders a confidence interval as "lo - hi".
func FormatInterval(ci [2]decimal.Decimal) string {
	return Format(ci[0]) + " - " + Format(ci[1])
}
