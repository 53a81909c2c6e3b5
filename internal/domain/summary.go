package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MonteCarloSummary is the payload carried in SimulationResult.Result for
// a completed Monte Carlo run. Numbers are decoded as decimals so they are
// displayed exactly as the agent reported them.
type MonteCarloSummary struct {
	MeanPrice           decimal.Decimal    `json:"mean_price"`
	StdDev              decimal.Decimal    `json:"std_dev"`
	ConfidenceInterval  [2]decimal.Decimal `json:"confidence_interval"` // 5th and 95th percentile
	FinalPricesSample   []decimal.Decimal  `json:"final_prices_sample,omitempty"`
	SimulationTimestamp string             `json:"simulation_timestamp,omitempty"`
	ParametersUsed      json.RawMessage    `json:"parameters_used,omitempty"`
}

// ErrMalformedSummary is returned when a payload is not a Monte Carlo summary.
var ErrMalformedSummary = errors.New("malformed simulation summary")

type rawSummary struct {
	MeanPrice           *decimal.Decimal  `json:"mean_price"`
	StdDev              *decimal.Decimal  `json:"std_dev"`
	ConfidenceInterval  []decimal.Decimal `json:"confidence_interval"`
	FinalPricesSample   []decimal.Decimal `json:"final_prices_sample"`
	SimulationTimestamp string            `json:"simulation_timestamp"`
	ParametersUsed      json.RawMessage   `json:"parameters_used"`
}

// ParseSummary decodes a serialized summary payload.
// mean_price, std_dev and a two-element confidence_interval are required.
func ParseSummary(payload string) (*MonteCarloSummary, error) {
	var raw rawSummary
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSummary, err)
	}
	if raw.MeanPrice == nil {
		return nil, fmt.Errorf("%w: missing mean_price", ErrMalformedSummary)
	}
	if raw.StdDev == nil {
		return nil, fmt.Errorf("%w: missing std_dev", ErrMalformedSummary)
	}
	if len(raw.ConfidenceInterval) != 2 {
		return nil, fmt.Errorf("%w: confidence_interval needs 2 bounds, got %d",
			ErrMalformedSummary, len(raw.ConfidenceInterval))
	}

	return &MonteCarloSummary{
		MeanPrice:           *raw.MeanPrice,
		StdDev:              *raw.StdDev,
		ConfidenceInterval:  [2]decimal.Decimal{raw.ConfidenceInterval[0], raw.ConfidenceInterval[1]},
		FinalPricesSample:   raw.FinalPricesSample,
		SimulationTimestamp: raw.SimulationTimestamp,
		ParametersUsed:      raw.ParametersUsed,
	}, nil
}

// Encode serializes the summary into the string form stored on a result.
func (s *MonteCarloSummary) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	return string(data), nil
}
