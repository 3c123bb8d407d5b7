package config

import (
	"os"
)

const (
	EnvConfigPath = "OBJARCHIVER_CONFIG"
	DotEnvFile    = ".env"
)

// ResolveConfigPath returns the explicit path if set, then the environment
// override. An empty result means no config file is read.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(EnvConfigPath)
}
