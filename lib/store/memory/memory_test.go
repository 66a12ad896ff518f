package memory

import (
	"testing"

	"github.com/Genosoo/expoasia-web-app/lib/store/storetest"
	"go.uber.org/goleak"
)

func TestImpl(t *testing.T) {
	// t.Context is cancelled before cleanups run, so the cleanup goroutine
	// must be gone by the time this check executes.
	t.Cleanup(func() { goleak.VerifyNone(t) })

	storetest.Common(t, factory{}, nil)
}
