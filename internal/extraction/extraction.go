// Package extraction defines the identity-extraction collaborator contract:
// given a scanned card image, return structured identity fields or report that
// no voter card was detected. The collaborator is treated as unreliable and
// slow; callers bound every call with a timeout, and only schema-validated
// responses are accepted. Free-text output is never interpreted.
package extraction

import (
	"context"
	"errors"
	"fmt"
)

// CardFields is the structured result of a successful extraction.
type CardFields struct {
	VIN         string
	FullName    string
	DateOfBirth string
}

// Extractor is implemented by identity-extraction providers.
type Extractor interface {
	Extract(ctx context.Context, imageB64 string) (CardFields, error)
}

// ErrorKind classifies provider failures so the engine can decide which are
// retriable and which fail the session.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"      // call exceeded its deadline; retriable
	KindOutage      ErrorKind = "outage"       // provider unreachable or circuit open; retriable
	KindBadResponse ErrorKind = "bad_response" // response did not match the schema; retriable
	KindNoCard      ErrorKind = "no_card"      // provider confidently saw no voter card; not retriable
	KindInternal    ErrorKind = "internal"
)

// ProviderError carries the failure classification alongside the cause.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError constructs a classified provider error.
func NewProviderError(kind ErrorKind, provider, message string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: message, Err: err}
}

// KindOf returns the classification of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsNoCard reports whether the provider confidently detected no voter card.
func IsNoCard(err error) bool {
	return KindOf(err) == KindNoCard
}
