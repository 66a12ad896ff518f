// Package data holds the default registration policy.
package data

import "embed"

var (
	//go:embed registration.yaml
	Policies embed.FS
)
