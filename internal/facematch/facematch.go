// Package facematch declares the face verification capability: compare the
// card photo against the live capture. The real matcher is not built yet; the
// contract exists so the engine and its tests are wired for it.
package facematch

import "context"

// Result is the matcher's verdict.
type Result string

const (
	ResultMatch        Result = "match"
	ResultNoMatch      Result = "no_match"
	ResultInconclusive Result = "inconclusive"
)

// Verifier compares the card evidence with the live face capture.
type Verifier interface {
	Verify(ctx context.Context, cardImageRef, liveImageRef string) (Result, error)
}

// StubVerifier is the shipped placeholder: it accepts every capture. Replace
// with a real matcher before relying on AUTO-path step 2 for enforcement.
type StubVerifier struct{}

// NewStub constructs the placeholder verifier.
func NewStub() *StubVerifier {
	return &StubVerifier{}
}

func (*StubVerifier) Verify(_ context.Context, _, _ string) (Result, error) {
	return ResultMatch, nil
}

var _ Verifier = (*StubVerifier)(nil)
