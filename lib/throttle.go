package lib

import (
	"context"
	"errors"
	"time"

	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/store"
)

// Throttle limits passcode emails to one address per Cooldown. Markers
// live in the shared store so every portal instance sees them.
type Throttle struct {
	Store    *store.JSON[time.Time]
	Cooldown time.Duration
	Now      func() time.Time
}

// Wait reports how long until email may be sent another passcode. Zero
// means now.
func (t *Throttle) Wait(ctx context.Context, email string) (time.Duration, error) {
	if t.Cooldown <= 0 {
		return 0, nil
	}

	sentAt, err := t.Store.Get(ctx, internal.EmailKey(email))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}

	if left := sentAt.Add(t.Cooldown).Sub(t.Now()); left > 0 {
		return left, nil
	}

	return 0, nil
}

// Record notes that a passcode was just sent to email.
func (t *Throttle) Record(ctx context.Context, email string) error {
	if t.Cooldown <= 0 {
		return nil
	}

	return t.Store.Set(ctx, internal.EmailKey(email), t.Now(), t.Cooldown)
}
