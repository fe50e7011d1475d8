// Package env has the one raw-environment lookup the loggers need before the
// typed config is available.
package env

import "os"

// Get reads key from the environment, returning fallback when unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
