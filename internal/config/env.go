package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "SSHCP_CONFIG"
	EnvHost   = "SSHCP_HOST"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // SSHCP_CONFIG: config file path
	Host       string // SSHCP_HOST: remote host for this invocation
}

// ReadEnvOverrides reads the override variables from the environment.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Host:       os.Getenv(EnvHost),
	}
}
