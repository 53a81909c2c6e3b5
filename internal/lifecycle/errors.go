package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/ArielSltty/Orion/internal/domain"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrSubmission     = errors.New("simulation submission failed")
	ErrUnknownRequest = errors.New("unknown simulation request")
	ErrTimeout        = errors.New("timed out waiting for simulation result")
	ErrServiceFailure = errors.New("simulation failed on the service")
)

// SubmissionError wraps a failed submit_simulation_request call.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSubmission, e.Err)
}

func (e *SubmissionError) Unwrap() error        { return e.Err }
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// UnknownRequestError means the service kept answering "not found" for RequestID.
type UnknownRequestError struct {
	RequestID string
}

func (e *UnknownRequestError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownRequest, e.RequestID)
}

func (e *UnknownRequestError) Is(target error) bool { return target == ErrUnknownRequest }

// TimeoutError is returned when no terminal status was observed within the
// attempt bound. It is a client-side outcome, distinct from ServiceFailure.
type TimeoutError struct {
	RequestID  string
	Attempts   int
	Waited     time.Duration        // set instead of Attempts when a push feed was followed
	LastStatus domain.RequestStatus // empty if the request was never seen
	Err        error                // last poll error, if any
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s: %s after %d attempts", ErrTimeout, e.RequestID, e.Attempts)
	if e.Attempts == 0 {
		msg = fmt.Sprintf("%s: %s after %s", ErrTimeout, e.RequestID, e.Waited.Round(time.Millisecond))
	}
	if e.LastStatus != "" {
		msg += fmt.Sprintf(" (last status %s)", e.LastStatus)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error        { return e.Err }
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ServiceFailure is a definitive failed outcome reported by the service.
// Message is empty when the service gave no reason.
type ServiceFailure struct {
	RequestID string
	Message   string
}

func (e *ServiceFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", ErrServiceFailure, e.RequestID)
	}
	return fmt.Sprintf("%s: %s: %s", ErrServiceFailure, e.RequestID, e.Message)
}

func (e *ServiceFailure) Is(target error) bool { return target == ErrServiceFailure }

func failureOf(req *domain.SimulationRequest) *ServiceFailure {
	f := &ServiceFailure{RequestID: req.ID}
	if req.Result != nil && req.Result.Error != nil {
		f.Message = *req.Result.Error
	}
	return f
}
