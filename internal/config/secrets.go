package config

import (
	"fmt"
	"os"
	"strings"
)

// resolveSecret resolves an "env:VAR_NAME" indirection against the
// environment, passing any other value through unchanged. Grounded on the
// donor benchmark client's LoadToken, which resolves "env:"/"file:"
// prefixed token configuration the same way; FanRide secrets only need the
// env: form since nothing here is distributed as a mounted file.
func resolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, "env:") {
		return value, nil
	}
	envVar := strings.TrimPrefix(value, "env:")
	if envVar == "" {
		return "", fmt.Errorf("config: empty env: indirection")
	}
	resolved := os.Getenv(envVar)
	if resolved == "" {
		return "", fmt.Errorf("config: environment variable %s is not set", envVar)
	}
	return resolved, nil
}
