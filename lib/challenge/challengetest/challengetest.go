// Package challengetest has in-memory stand-ins for the passcode backend.
package challengetest

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/google/uuid"
)

// New returns a live challenge issued now with the default attempt budget.
func New(t *testing.T) *challenge.Challenge {
	t.Helper()

	now := time.Now()

	return &challenge.Challenge{
		Reference:         uuid.Must(uuid.NewV7()).String(),
		IssuedAt:          now,
		ExpiresAt:         now.Add(5 * time.Minute),
		AttemptsRemaining: 3,
	}
}

// GenerateCode returns a six digit numeric passcode.
func GenerateCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	for i := range b {
		b[i] = '0' + b[i]%10
	}

	return string(b), nil
}

type pending struct {
	email     string
	codeHash  string
	expiresAt time.Time
}

// Backend implements challenge.Issuer and challenge.Verifier in memory.
// Codes are "mailed" to Inbox. Issuing for an address revokes every
// earlier reference for it.
type Backend struct {
	Lifetime time.Duration
	Now      func() time.Time

	// VerifyGate, when set, blocks Verify until a value is received or the
	// context ends. VerifyStarted is signalled before blocking.
	VerifyGate    chan struct{}
	VerifyStarted chan struct{}

	// IssueGate and IssueStarted do the same for Issue.
	IssueGate    chan struct{}
	IssueStarted chan struct{}

	lock       sync.Mutex
	pending    map[string]pending
	inbox      map[string]string
	issueErrs  []error
	verifyErrs []error
	issued     int
	verified   int
	inFlight   int
	maxFlight  int
}

func NewBackend() *Backend {
	return &Backend{
		Lifetime: 5 * time.Minute,
		Now:      time.Now,
		pending:  map[string]pending{},
		inbox:    map[string]string{},
	}
}

// SetClock replaces Now while calls may be in flight.
func (b *Backend) SetClock(now func() time.Time) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.Now = now
}

// FailIssue queues errors returned by the next Issue calls, in order.
func (b *Backend) FailIssue(errs ...error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.issueErrs = append(b.issueErrs, errs...)
}

// FailVerify queues errors returned by the next Verify calls, in order.
func (b *Backend) FailVerify(errs ...error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.verifyErrs = append(b.verifyErrs, errs...)
}

// Inbox returns the last passcode mailed to email.
func (b *Backend) Inbox(email string) string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.inbox[email]
}

// Issued counts calls to Issue, failed ones included.
func (b *Backend) Issued() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.issued
}

// MaxConcurrentIssues reports the most Issue calls ever running at once.
func (b *Backend) MaxConcurrentIssues() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.maxFlight
}

// Verified counts calls to Verify that reached the backend.
func (b *Backend) Verified() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.verified
}

func (b *Backend) Issue(ctx context.Context, email string) (*challenge.Challenge, error) {
	b.lock.Lock()
	b.inFlight++
	b.maxFlight = max(b.maxFlight, b.inFlight)
	b.lock.Unlock()

	defer func() {
		b.lock.Lock()
		b.inFlight--
		b.lock.Unlock()
	}()

	if b.IssueGate != nil {
		if b.IssueStarted != nil {
			b.IssueStarted <- struct{}{}
		}

		select {
		case <-b.IssueGate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", challenge.ErrNetwork, ctx.Err())
		}
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	b.issued++

	if len(b.issueErrs) != 0 {
		err := b.issueErrs[0]
		b.issueErrs = b.issueErrs[1:]
		return nil, err
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	for ref, p := range b.pending {
		if p.email == email {
			delete(b.pending, ref)
		}
	}

	now := b.Now()
	ref := uuid.Must(uuid.NewV7()).String()
	b.pending[ref] = pending{
		email:     email,
		codeHash:  internal.SHA256sum(code),
		expiresAt: now.Add(b.Lifetime),
	}
	b.inbox[email] = code

	return &challenge.Challenge{
		Reference: ref,
		IssuedAt:  now,
		ExpiresAt: now.Add(b.Lifetime),
	}, nil
}

func (b *Backend) Verify(ctx context.Context, reference, code string) (bool, error) {
	if b.VerifyGate != nil {
		if b.VerifyStarted != nil {
			b.VerifyStarted <- struct{}{}
		}

		select {
		case <-b.VerifyGate:
		case <-ctx.Done():
			return false, fmt.Errorf("%w: %w", challenge.ErrNetwork, ctx.Err())
		}
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	b.verified++

	if len(b.verifyErrs) != 0 {
		err := b.verifyErrs[0]
		b.verifyErrs = b.verifyErrs[1:]
		return false, err
	}

	p, ok := b.pending[reference]
	if !ok || !b.Now().Before(p.expiresAt) {
		return false, fmt.Errorf("%w: reference %q", challenge.ErrExpired, reference)
	}

	if subtle.ConstantTimeCompare([]byte(internal.SHA256sum(code)), []byte(p.codeHash)) != 1 {
		return false, nil
	}

	delete(b.pending, reference)
	return true, nil
}
