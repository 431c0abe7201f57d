// Package errkind defines the error taxonomy shared across the pipeline.
// Components surface these kinds to the lifecycle manager, which decides the
// lifecycle consequence and records it in the audit chain.
package errkind

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation - input failed structural checks. Record not advanced.
	ErrValidation = errors.New("validation error")

	// ErrAnonymization - tokenization step failed. Record parks in
	// ANONYMIZING with the last error recorded; retryable.
	ErrAnonymization = errors.New("anonymization error")

	// ErrAnonymizationLeak - validator found residual PII in anonymized
	// output. Record is rejected; audited at CRITICAL severity.
	ErrAnonymizationLeak = errors.New("anonymization leak")

	// ErrQualityFloor - approval attempted with POOR quality. Approval
	// refused, record remains VALIDATED.
	ErrQualityFloor = errors.New("quality floor not met")

	// ErrTransientFetch - fetch retries exhausted; the caller may retry.
	ErrTransientFetch = errors.New("transient fetch error")

	// ErrPermanentFetch - 4xx other than 429; record rejected with cause.
	ErrPermanentFetch = errors.New("permanent fetch error")

	// ErrChainIntegrity - a verify pass detected a broken link. Never
	// recovered locally; halts the pipeline for the affected store.
	ErrChainIntegrity = errors.New("chain integrity error")

	// ErrCancelled - cooperative cancellation; record moves to REJECTED
	// with reason CANCELLED.
	ErrCancelled = errors.New("cancelled")
)

// Wrap annotates err with a kind so errors.Is(err, kind) holds.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Reason returns the stable reason code for an error kind, used in lifecycle
// call results and audit metadata.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrAnonymizationLeak):
		return "ANONYMIZATION_LEAK"
	case errors.Is(err, ErrAnonymization):
		return "ANONYMIZATION_FAILED"
	case errors.Is(err, ErrQualityFloor):
		return "QUALITY_FLOOR"
	case errors.Is(err, ErrTransientFetch):
		return "FETCH_TRANSIENT"
	case errors.Is(err, ErrPermanentFetch):
		return "FETCH_PERMANENT"
	case errors.Is(err, ErrChainIntegrity):
		return "CHAIN_INTEGRITY"
	case errors.Is(err, ErrCancelled):
		return "CANCELLED"
	case err == nil:
		return "OK"
	default:
		return "INTERNAL"
	}
}
