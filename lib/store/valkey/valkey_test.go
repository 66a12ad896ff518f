package valkey

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/store"
	"github.com/Genosoo/expoasia-web-app/lib/store/storetest"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func init() {
	internal.UnbreakDocker()
}

func TestConfigValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		cfg  Config
		err  error
	}{
		{
			name: "no url",
			cfg:  Config{},
			err:  ErrNoURL,
		},
		{
			name: "bad scheme",
			cfg:  Config{URL: "mysql://localhost:3306"},
			err:  ErrBadURL,
		},
		{
			name: "good",
			cfg:  Config{URL: "redis://valkey:6379/0", KeyPrefix: "expo2025:"},
			err:  nil,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Valid(); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}

	if err := (Factory{}).Valid(json.RawMessage(`[]`)); !errors.Is(err, store.ErrBadConfig) {
		t.Errorf("wanted ErrBadConfig for a non-object config, got: %v", err)
	}
}

func TestImpl(t *testing.T) {
	if os.Getenv("DONT_USE_NETWORK") != "" {
		t.Skip("test requires network egress")
		return
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	req := testcontainers.ContainerRequest{
		Image:      "valkey/valkey:8",
		WaitingFor: wait.ForLog("Ready to accept connections"),
	}
	valkeyC, err := testcontainers.GenericContainer(t.Context(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	testcontainers.CleanupContainer(t, valkeyC)
	if err != nil {
		t.Fatal(err)
	}

	containerIP, err := valkeyC.ContainerIP(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(Config{
		URL:       fmt.Sprintf("redis://%s:6379/0", containerIP),
		KeyPrefix: "expoasia-test:",
	})
	if err != nil {
		t.Fatal(err)
	}

	storetest.Common(t, Factory{}, json.RawMessage(data))
}
