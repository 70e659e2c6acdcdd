package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iop-labs/profiled/internal/bytesize"
	"github.com/iop-labs/profiled/pkg/store"
)

// Default ports of the four roles. Consecutive ports, primary first, in the
// order the roles are listed by ListRoles.
const (
	DefaultPrimaryPort     = 16987
	DefaultNonCustomerPort = 16988
	DefaultCustomerPort    = 16989
	DefaultSrNeighborPort  = 16990
)

// DefaultMaxHostedIdentities is the hosting capacity cap.
const DefaultMaxHostedIdentities = 20000

// DefaultMaxImageSize caps a single image payload in a profile update.
const DefaultMaxImageSize = bytesize.ByteSize(512 * 1024)

// DefaultShutdownTimeout bounds the client-connection drain on shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(cfg)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.Database.ApplyDefaults()
	applyImagesDefaults(cfg)
	applyHostingDefaults(&cfg.Hosting)
	applyNeighborhoodDefaults(&cfg.Neighborhood)
}

func applyServerDefaults(cfg *Config) {
	if cfg.ServerInterface == "" {
		cfg.ServerInterface = "any"
	}
	if cfg.PrimaryInterfacePort == 0 {
		cfg.PrimaryInterfacePort = DefaultPrimaryPort
	}
	if cfg.ClientNonCustomerInterfacePort == 0 {
		cfg.ClientNonCustomerInterfacePort = DefaultNonCustomerPort
	}
	if cfg.ClientCustomerInterfacePort == 0 {
		cfg.ClientCustomerInterfacePort = DefaultCustomerPort
	}
	if cfg.SrNeighborInterfacePort == 0 {
		cfg.SrNeighborInterfacePort = DefaultSrNeighborPort
	}
	if cfg.TLSServerCertificate == "" {
		cfg.TLSServerCertificate = filepath.Join(getConfigDir(), "tls.pem")
	}
	if cfg.ImageDataFolder == "" {
		cfg.ImageDataFolder = filepath.Join(getDataDir(), "images")
	}
	if cfg.TempDataFolder == "" {
		cfg.TempDataFolder = filepath.Join(getDataDir(), "temp")
	}
	if cfg.MaxHostedIdentities == 0 {
		cfg.MaxHostedIdentities = DefaultMaxHostedIdentities
	}
	if cfg.LocationServiceEndpoint == "" {
		cfg.LocationServiceEndpoint = "localhost:16982"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu", "alloc_objects", "alloc_space",
			"inuse_objects", "inuse_space", "goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyImagesDefaults(cfg *Config) {
	if cfg.Images.Backend == "" {
		cfg.Images.Backend = "fs"
	}
	if cfg.Images.MaxSize == 0 {
		cfg.Images.MaxSize = DefaultMaxImageSize
	}
}

func applyHostingDefaults(cfg *HostingConfig) {
	if cfg.CancellationRetention == 0 {
		cfg.CancellationRetention = 14 * 24 * time.Hour
	}
	if cfg.MaxRelatedIdentities == 0 {
		cfg.MaxRelatedIdentities = 100
	}
}

func applyNeighborhoodDefaults(cfg *NeighborhoodConfig) {
	if cfg.WorkerInterval == 0 {
		cfg.WorkerInterval = 5 * time.Second
	}
	if cfg.InitializationTimeout == 0 {
		cfg.InitializationTimeout = 10 * time.Minute
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}
	if cfg.FollowerRefreshPeriod == 0 {
		cfg.FollowerRefreshPeriod = 12 * time.Hour
	}
	if cfg.RecordRefreshInterval == 0 {
		cfg.RecordRefreshInterval = 17 * time.Second
	}
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{Type: store.DatabaseTypeSQLite},
	}
	ApplyDefaults(cfg)
	return cfg
}

// getDataDir returns the data directory, following XDG.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "profiled")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "profiled")
}
