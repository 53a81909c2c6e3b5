package idhash

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"

	"github.com/ArielSltty/Orion/internal/domain"
)

// ComputeRequestID computes a deterministic request_id using SHA256.
// Formula: SHA256(caller|simulation_type|params|created_at|nonce)
// Returns base58-encoded hash (43 or 44 characters).
//
// The nonce distinguishes identical submissions made by the same caller
// within the same nanosecond.
func ComputeRequestID(
	caller string,
	simType domain.SimulationType,
	params domain.SimulationParameters,
	createdAt int64,
	nonce uint64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		caller,
		string(simType),
		canonicalParams(params),
		createdAt,
		nonce,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// canonicalParams renders parameters in a fixed field order with
// shortest round-trip float formatting.
func canonicalParams(p domain.SimulationParameters) string {
	return fmt.Sprintf("%s,%s,%s,%s,%d,%d",
		strconv.FormatFloat(p.InitialPrice, 'g', -1, 64),
		strconv.FormatFloat(p.Drift, 'g', -1, 64),
		strconv.FormatFloat(p.Volatility, 'g', -1, 64),
		strconv.FormatFloat(p.TimeHorizon, 'g', -1, 64),
		p.TimeSteps,
		p.NSimulations,
	)
}
