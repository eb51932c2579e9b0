package instance

import (
	"os"

	"github.com/angelmondragon/storefront-checkout/pkg/env"
)

// ID names the running process in logs and lock owners. It prefers an
// explicit STOREFRONT_INSTANCE_ID, then the platform dyno name, then the
// hostname.
func ID() string {
	if id := env.First("STOREFRONT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
