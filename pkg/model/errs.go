package model

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures across the store. Validation and dimension
// errors are raised before any round-trip and are never retried.
var (
	ErrTagValidation  = goerr.NewTag("validation")
	ErrTagDimension   = goerr.NewTag("dimension_mismatch")
	ErrTagCircuitOpen = goerr.NewTag("circuit_open")
	ErrTagStore       = goerr.NewTag("store")
	ErrTagSchema      = goerr.NewTag("schema")
)

// IsValidation reports whether err was caused by invalid input, including
// embedding dimension mismatches.
func IsValidation(err error) bool {
	return goerr.HasTag(err, ErrTagValidation) || goerr.HasTag(err, ErrTagDimension)
}

// IsDimensionMismatch reports whether err was caused by an embedding whose
// length does not match the active provider dimension.
func IsDimensionMismatch(err error) bool {
	return goerr.HasTag(err, ErrTagDimension)
}

// IsCircuitOpen reports whether err was a fast rejection by an open circuit
// breaker.
func IsCircuitOpen(err error) bool {
	return goerr.HasTag(err, ErrTagCircuitOpen)
}

// IsSchema reports whether err came from schema bootstrap.
func IsSchema(err error) bool {
	return goerr.HasTag(err, ErrTagSchema)
}
