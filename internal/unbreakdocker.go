package internal

import (
	"os"
	"os/exec"
)

// UnbreakDocker attaches the current container to the default bridge
// network so container-backed tests can reach their dependencies when the
// test binary itself runs inside a dev container. Errors are ignored: on a
// plain host there is nothing to attach.
func UnbreakDocker() {
	if _, err := os.Stat("/.dockerenv"); err != nil {
		return
	}

	if hostname, err := os.Hostname(); err == nil {
		exec.Command("docker", "network", "connect", "bridge", hostname).Run()
	}
}
