package domain

import (
	"fmt"
	"math"
)

// SimulationParameters describes a single Monte Carlo price simulation.
// Submitted by the client, stored by the service, echoed on display.
type SimulationParameters struct {
	InitialPrice float64 `json:"initial_price" yaml:"initial_price"` // starting asset price, > 0
	Drift        float64 `json:"drift" yaml:"drift"`                 // annualized expected return
	Volatility   float64 `json:"volatility" yaml:"volatility"`       // annualized volatility, >= 0
	TimeHorizon  float64 `json:"time_horizon" yaml:"time_horizon"`   // years, > 0
	TimeSteps    uint64  `json:"time_steps" yaml:"time_steps"`       // discretization steps, > 0
	NSimulations uint64  `json:"n_simulations" yaml:"n_simulations"` // simulated paths, > 0
}

// Defaults offered by the chat template and the CLI.
const (
	DefaultInitialPrice = 100.0
	DefaultDrift        = 0.05
	DefaultVolatility   = 0.2
	DefaultTimeHorizon  = 1.0
	DefaultTimeSteps    = 252
	DefaultNSimulations = 1000
)

// DefaultParameters returns the one-year daily-step template.
func DefaultParameters() SimulationParameters {
	return SimulationParameters{
		InitialPrice: DefaultInitialPrice,
		Drift:        DefaultDrift,
		Volatility:   DefaultVolatility,
		TimeHorizon:  DefaultTimeHorizon,
		TimeSteps:    DefaultTimeSteps,
		NSimulations: DefaultNSimulations,
	}
}

// Validate checks every field and reports all violations at once.
// Returns nil or *ValidationError.
func (p SimulationParameters) Validate() error {
	var v ValidationError

	checkFinite(&v, "initial_price", p.InitialPrice)
	checkFinite(&v, "drift", p.Drift)
	checkFinite(&v, "volatility", p.Volatility)
	checkFinite(&v, "time_horizon", p.TimeHorizon)

	if !math.IsNaN(p.InitialPrice) && p.InitialPrice <= 0 {
		v.add("initial_price", "must be greater than 0")
	}
	if p.Volatility < 0 {
		v.add("volatility", "must not be negative")
	}
	if !math.IsNaN(p.TimeHorizon) && p.TimeHorizon <= 0 {
		v.add("time_horizon", "must be greater than 0")
	}
	if p.TimeSteps == 0 {
		v.add("time_steps", "must be greater than 0")
	}
	if p.NSimulations == 0 {
		v.add("n_simulations", "must be greater than 0")
	}

	return v.errOrNil()
}

func checkFinite(v *ValidationError, field string, x float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		v.add(field, "must be a finite number")
	}
}

// ParametersInput is the untrusted shape of parameters as typed by a user
// or decoded from a preset file. Nil fields were not provided.
type ParametersInput struct {
	InitialPrice *float64 `json:"initial_price" yaml:"initial_price"`
	Drift        *float64 `json:"drift" yaml:"drift"`
	Volatility   *float64 `json:"volatility" yaml:"volatility"`
	TimeHorizon  *float64 `json:"time_horizon" yaml:"time_horizon"`
	TimeSteps    *float64 `json:"time_steps" yaml:"time_steps"`
	NSimulations *float64 `json:"n_simulations" yaml:"n_simulations"`
}

// maxCount bounds integer fields so the float-to-uint conversion is exact.
const maxCount = 1 << 53

// Resolve converts the input into validated SimulationParameters.
// Missing fields, non-integral counts and out-of-range values are
// reported together as a *ValidationError.
func (in ParametersInput) Resolve() (SimulationParameters, error) {
	var v ValidationError
	var p SimulationParameters

	p.InitialPrice = required(&v, "initial_price", in.InitialPrice)
	p.Drift = required(&v, "drift", in.Drift)
	p.Volatility = required(&v, "volatility", in.Volatility)
	p.TimeHorizon = required(&v, "time_horizon", in.TimeHorizon)
	p.TimeSteps = count(&v, "time_steps", in.TimeSteps)
	p.NSimulations = count(&v, "n_simulations", in.NSimulations)

	if len(v.Fields) > 0 {
		return SimulationParameters{}, &v
	}
	if err := p.Validate(); err != nil {
		return SimulationParameters{}, err
	}
	return p, nil
}

// InputFrom returns an input with every field of p set.
func InputFrom(p SimulationParameters) ParametersInput {
	steps := float64(p.TimeSteps)
	sims := float64(p.NSimulations)
	return ParametersInput{
		InitialPrice: &p.InitialPrice,
		Drift:        &p.Drift,
		Volatility:   &p.Volatility,
		TimeHorizon:  &p.TimeHorizon,
		TimeSteps:    &steps,
		NSimulations: &sims,
	}
}

func required(v *ValidationError, field string, x *float64) float64 {
	if x == nil {
		v.add(field, "is required")
		return 0
	}
	return *x
}

func count(v *ValidationError, field string, x *float64) uint64 {
	if x == nil {
		v.add(field, "is required")
		return 0
	}
	n := *x
	switch {
	case math.IsNaN(n) || math.IsInf(n, 0):
		v.add(field, "must be a finite number")
	case n <= 0:
		v.add(field, "must be greater than 0")
	case n != math.Trunc(n):
		v.add(field, fmt.Sprintf("must be a whole number, got %v", n))
	case n > maxCount:
		v.add(field, "is too large")
	default:
		return uint64(n)
	}
	return 0
}
