package challengetest

import (
	"errors"
	"testing"
	"time"

	"github.com/Genosoo/expoasia-web-app/lib/challenge"
)

func TestBackendSupersedes(t *testing.T) {
	b := NewBackend()
	const email = "juan.delacruz@example.ph"

	first, err := b.Issue(t.Context(), email)
	if err != nil {
		t.Fatal(err)
	}
	firstCode := b.Inbox(email)

	second, err := b.Issue(t.Context(), email)
	if err != nil {
		t.Fatal(err)
	}

	if first.Reference == second.Reference {
		t.Fatal("two issues returned the same reference")
	}

	if _, err := b.Verify(t.Context(), first.Reference, firstCode); !errors.Is(err, challenge.ErrExpired) {
		t.Errorf("superseded reference did not fail with ErrExpired: %v", err)
	}

	ok, err := b.Verify(t.Context(), second.Reference, b.Inbox(email))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("current code did not match")
	}
}

func TestBackendExpiry(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	b := NewBackend()
	b.Now = func() time.Time { return now }

	c, err := b.Issue(t.Context(), "a@example.ph")
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(b.Lifetime)

	if _, err := b.Verify(t.Context(), c.Reference, b.Inbox("a@example.ph")); !errors.Is(err, challenge.ErrExpired) {
		t.Errorf("wanted ErrExpired, got %v", err)
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	if err != nil {
		t.Fatal(err)
	}

	if len(code) != 6 {
		t.Fatalf("wanted six digits, got %q", code)
	}

	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in %q", code)
		}
	}
}
