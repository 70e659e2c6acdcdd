package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `# profiled configuration
#
# Every key can be overridden with a PROFILED_* environment variable, e.g.
# PROFILED_LOGGING_LEVEL=DEBUG or PROFILED_MAX_HOSTED_IDENTITIES=100.
#
# The TLS certificate referenced by tls_server_certificate is a single PEM
# file carrying the X.509 certificate and its private key; 'profiled init'
# generates a self-signed one. Peer certificates are never validated by the
# protocol, so a self-signed certificate is fully functional.

`

// InitConfig writes a sample configuration file to the default location and
// returns its path. Fails if the file already exists unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a sample configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := GetDefaultConfig()
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render sample config: %w", err)
	}

	data := append([]byte(sampleHeader), body...)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
