package challenge

import "context"

// Issuer asks the backend to email a fresh passcode.
//
// Every call sends a new email and supersedes any earlier reference for the
// same address. Failures wrap ErrNetwork, ErrServer or ErrAuth.
type Issuer interface {
	Issue(ctx context.Context, email string) (*Challenge, error)
}

// Verifier checks an entered passcode against the backend.
//
// A superseded or timed-out reference yields ErrExpired, never a match.
// Transport failures wrap ErrNetwork.
type Verifier interface {
	Verify(ctx context.Context, reference, code string) (matched bool, err error)
}
