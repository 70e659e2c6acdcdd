package config

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndLoadSelfSignedCertificate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tls.pem")

	require.NoError(t, GenerateSelfSignedCertificate(path, "profiled.test", false))

	// Refuses to overwrite without force.
	err := GenerateSelfSignedCertificate(path, "profiled.test", false)
	require.Error(t, err)

	cfg, err := LoadTLS(path)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	assert.NotEmpty(t, cfg.Certificates[0].Certificate)
}

func TestLoadTLSMissingFile(t *testing.T) {
	_, err := LoadTLS(filepath.Join(t.TempDir(), "nope.pem"))
	require.Error(t, err)
}
