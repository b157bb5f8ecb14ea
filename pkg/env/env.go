package env

import "os"

// Get reads the named variable, falling back when it is unset or empty.
// Empty counts as unset here: a blank log level in a compose file should
// not silence the service.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
