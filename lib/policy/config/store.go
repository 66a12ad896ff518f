package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Genosoo/expoasia-web-app/lib/store"
	_ "github.com/Genosoo/expoasia-web-app/lib/store/all"
)

var (
	ErrNoStoreBackend      = errors.New("config.Store: no backend defined")
	ErrUnknownStoreBackend = errors.New("config.Store: unknown backend")
)

// Store picks where resend throttle markers and finished credentials live.
// Parameters are passed to the backend's factory unchanged.
type Store struct {
	Backend    string          `json:"backend"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

func (s *Store) Valid() error {
	if len(s.Backend) == 0 {
		return ErrNoStoreBackend
	}

	fac, ok := store.Get(s.Backend)
	if !ok {
		return fmt.Errorf("%w: %q (have %v)", ErrUnknownStoreBackend, s.Backend, store.Methods())
	}

	return fac.Valid(s.Parameters)
}
