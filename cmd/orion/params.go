package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ArielSltty/Orion/internal/domain"
)

// paramFlags are the simulate flags; each overrides the preset file.
var paramFlags = []struct {
	name  string
	usage string
	field func(*domain.ParametersInput) **float64
}{
	{"initial-price", "Starting asset price", func(in *domain.ParametersInput) **float64 { return &in.InitialPrice }},
	{"drift", "Expected annual return", func(in *domain.ParametersInput) **float64 { return &in.Drift }},
	{"volatility", "Annual volatility", func(in *domain.ParametersInput) **float64 { return &in.Volatility }},
	{"time-horizon", "Horizon in years", func(in *domain.ParametersInput) **float64 { return &in.TimeHorizon }},
	{"time-steps", "Steps per path", func(in *domain.ParametersInput) **float64 { return &in.TimeSteps }},
	{"n-simulations", "Number of paths", func(in *domain.ParametersInput) **float64 { return &in.NSimulations }},
}

// registerParamFlags adds one float flag per parameter, defaulted to
// domain.DefaultParameters.
func registerParamFlags(fs *pflag.FlagSet) {
	defaults := domain.InputFrom(domain.DefaultParameters())
	for _, f := range paramFlags {
		fs.Float64(f.name, **f.field(&defaults), f.usage)
	}
}

// resolveParams builds the parameters from an optional preset file and the
// flags. Precedence: explicit flags, then the file, then flag defaults.
func resolveParams(fs *pflag.FlagSet, presetPath string) (domain.SimulationParameters, error) {
	var in domain.ParametersInput
	if presetPath != "" {
		loaded, err := loadPreset(presetPath)
		if err != nil {
			return domain.SimulationParameters{}, err
		}
		in = loaded
	}

	for _, f := range paramFlags {
		dst := f.field(&in)
		if *dst != nil && !fs.Changed(f.name) {
			continue
		}
		v, err := fs.GetFloat64(f.name)
		if err != nil {
			return domain.SimulationParameters{}, err
		}
		*dst = &v
	}
	return in.Resolve()
}

// loadPreset decodes a YAML parameter file. Unknown keys are rejected so
// typos do not silently fall back to defaults.
func loadPreset(path string) (domain.ParametersInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ParametersInput{}, fmt.Errorf("open parameter file: %w", err)
	}
	defer f.Close()

	var in domain.ParametersInput
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return domain.ParametersInput{}, fmt.Errorf("decode parameter file %s: %w", path, err)
	}
	return in, nil
}
