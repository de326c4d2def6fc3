package engine

import (
	"errors"
	"fmt"
)

// Reason distinguishes why a combination produced no element.
type Reason string

const (
	// ReasonNoCredential means the generative tier was needed but no API key was available.
	// The caller should prompt for one; nothing was cached.
	ReasonNoCredential Reason = "no_credential"

	// ReasonResolverError means the generative request failed in transit.
	// Nothing was cached so the pair is retried on the next attempt.
	ReasonResolverError Reason = "resolver_error"

	// ReasonInvalidMix means the pair is known not to combine. This outcome is cached.
	ReasonInvalidMix Reason = "invalid_mix"
)

// CombineError is returned by Combine for every unsuccessful outcome.
type CombineError struct {
	Reason Reason
	A, B   string
	Err    error
}

func (e *CombineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("combine %s + %s: %s: %v", e.A, e.B, e.Reason, e.Err)
	}
	return fmt.Sprintf("combine %s + %s: %s", e.A, e.B, e.Reason)
}

func (e *CombineError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from err, or "" if err is not a CombineError.
func ReasonOf(err error) Reason {
	var ce *CombineError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

// IsNoCredential reports whether err is a combine failure caused by a missing credential.
func IsNoCredential(err error) bool {
	return ReasonOf(err) == ReasonNoCredential
}
