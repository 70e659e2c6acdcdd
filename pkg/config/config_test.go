package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-labs/profiled/internal/bytesize"
	"github.com/iop-labs/profiled/pkg/store"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "any", cfg.ServerInterface)
	assert.Equal(t, DefaultPrimaryPort, cfg.PrimaryInterfacePort)
	assert.Equal(t, DefaultNonCustomerPort, cfg.ClientNonCustomerInterfacePort)
	assert.Equal(t, DefaultCustomerPort, cfg.ClientCustomerInterfacePort)
	assert.Equal(t, DefaultSrNeighborPort, cfg.SrNeighborInterfacePort)
	assert.Equal(t, DefaultMaxHostedIdentities, cfg.MaxHostedIdentities)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, store.DatabaseTypeSQLite, cfg.Database.Type)
	assert.Equal(t, "fs", cfg.Images.Backend)
	assert.Equal(t, DefaultMaxImageSize, cfg.Images.MaxSize)
	assert.Equal(t, 12*time.Hour, cfg.Neighborhood.FollowerRefreshPeriod)
	assert.Equal(t, 17*time.Second, cfg.Neighborhood.RecordRefreshInterval)

	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server_interface: 192.0.2.10
primary_interface_port: 20001
client_non_customer_interface_port: 20002
client_customer_interface_port: 20003
sr_neighbor_interface_port: 20004
tls_server_certificate: /etc/profiled/tls.pem
image_data_folder: /var/lib/profiled/images
temp_data_folder: /var/lib/profiled/temp
max_hosted_identities: 50
location_service_endpoint: loc.example.com:16982
can_endpoint: http://can.example.com:14001
latitude: 48.858844
longitude: 2.294351
logging:
  level: debug
images:
  max_size: 256KB
neighborhood:
  follower_refresh_period: 6h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.0.2.10", cfg.ServerInterface)
	assert.Equal(t, "192.0.2.10", cfg.BindAddress())
	assert.Equal(t, 20001, cfg.PrimaryInterfacePort)
	assert.Equal(t, 50, cfg.MaxHostedIdentities)
	assert.Equal(t, "loc.example.com:16982", cfg.LocationServiceEndpoint)
	assert.Equal(t, "http://can.example.com:14001", cfg.CANEndpoint)
	assert.InDelta(t, 48.858844, cfg.Latitude, 1e-9)

	// Normalized and defaulted values.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, bytesize.ByteSize(256*1000), cfg.Images.MaxSize)
	assert.Equal(t, 6*time.Hour, cfg.Neighborhood.FollowerRefreshPeriod)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPrimaryPort, cfg.PrimaryInterfacePort)
}

func TestBindAddressAny(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.Equal(t, "", cfg.BindAddress())

	cfg.ServerInterface = "ANY"
	assert.Equal(t, "", cfg.BindAddress())
}

func TestAnnouncedAddressPrefersExternal(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ServerInterface = "10.0.0.1"
	assert.Equal(t, "10.0.0.1", cfg.AnnouncedAddress())

	cfg.ExternalAddress = "198.51.100.7"
	assert.Equal(t, "198.51.100.7", cfg.AnnouncedAddress())
}

func TestValidateRejectsPortCollision(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ClientCustomerInterfacePort = cfg.PrimaryInterfacePort
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestValidateRejectsBadLatitude(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Latitude = 91
	require.Error(t, Validate(cfg))
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.MaxHostedIdentities = 123
	cfg.Neighborhood.Expiration = 36 * time.Hour
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 123, loaded.MaxHostedIdentities)
	assert.Equal(t, 36*time.Hour, loaded.Neighborhood.Expiration)
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, InitConfigToPath(path, false))

	// Refuses to overwrite without force.
	err := InitConfigToPath(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, InitConfigToPath(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
}
