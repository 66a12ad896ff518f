// Package all is a meta-package that imports all store implementations so
// their factories are registered.
package all

import (
	_ "github.com/Genosoo/expoasia-web-app/lib/store/bbolt"
	_ "github.com/Genosoo/expoasia-web-app/lib/store/memory"
	_ "github.com/Genosoo/expoasia-web-app/lib/store/valkey"
)
