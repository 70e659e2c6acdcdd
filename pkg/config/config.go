// Package config loads, validates and materializes the profiled
// configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (PROFILED_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// The wire-facing keys (ports, interface, TLS material, data folders, the
// hosting cap, external endpoints) live at the top level of the file; the
// ambient concerns (logging, telemetry, metrics, database, tuning) are
// grouped in sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/iop-labs/profiled/internal/bytesize"
	"github.com/iop-labs/profiled/pkg/store"
)

// Config is the complete static configuration of a profiled node.
type Config struct {
	// ServerInterface is the IP address the role listeners bind to.
	// "any" (or empty) binds all interfaces.
	ServerInterface string `mapstructure:"server_interface" validate:"required" yaml:"server_interface"`

	// PrimaryInterfacePort is the plaintext role port. It serves only the
	// service listing; everything else requires one of the TLS roles.
	PrimaryInterfacePort int `mapstructure:"primary_interface_port" validate:"required,min=1,max=65535" yaml:"primary_interface_port"`

	// ClientNonCustomerInterfacePort is the TLS port for identity-scoped,
	// non-hosting queries and hosting registration.
	ClientNonCustomerInterfacePort int `mapstructure:"client_non_customer_interface_port" validate:"required,min=1,max=65535" yaml:"client_non_customer_interface_port"`

	// ClientCustomerInterfacePort is the TLS port hosted identities check
	// in on to manage their own profiles.
	ClientCustomerInterfacePort int `mapstructure:"client_customer_interface_port" validate:"required,min=1,max=65535" yaml:"client_customer_interface_port"`

	// SrNeighborInterfacePort is the TLS port peer profile servers use for
	// neighborhood initialization and replication.
	SrNeighborInterfacePort int `mapstructure:"sr_neighbor_interface_port" validate:"required,min=1,max=65535" yaml:"sr_neighbor_interface_port"`

	// TLSServerCertificate is the path to a PEM file holding the X.509
	// certificate and private key shared by every encrypted role. Peer
	// certificates are never validated; identities travel in-band.
	TLSServerCertificate string `mapstructure:"tls_server_certificate" validate:"required" yaml:"tls_server_certificate"`

	// ImageDataFolder is the root of the content-addressed image store.
	ImageDataFolder string `mapstructure:"image_data_folder" validate:"required" yaml:"image_data_folder"`

	// TempDataFolder is the staging root for image uploads. Must be on the
	// same filesystem as ImageDataFolder for atomic commits.
	TempDataFolder string `mapstructure:"temp_data_folder" validate:"required" yaml:"temp_data_folder"`

	// MaxHostedIdentities caps concurrent non-cancelled hostings.
	MaxHostedIdentities int `mapstructure:"max_hosted_identities" validate:"required,min=1" yaml:"max_hosted_identities"`

	// LocationServiceEndpoint is the host:port of the external location
	// service supplying neighborhood topology.
	LocationServiceEndpoint string `mapstructure:"location_service_endpoint" validate:"required" yaml:"location_service_endpoint"`

	// CANEndpoint is the base URL of the content-addressable-network
	// gateway the contact record is published to. Empty disables
	// publishing.
	CANEndpoint string `mapstructure:"can_endpoint" yaml:"can_endpoint,omitempty"`

	// ExternalAddress is the public IP address announced to peers and the
	// location service. Empty falls back to the bind interface.
	ExternalAddress string `mapstructure:"external_address" yaml:"external_address,omitempty"`

	// Latitude and Longitude are this server's GPS position in decimal
	// degrees, announced to the location service and to initializing
	// peers.
	Latitude  float64 `mapstructure:"latitude" validate:"gte=-90,lte=90" yaml:"latitude"`
	Longitude float64 `mapstructure:"longitude" validate:"gte=-180,lte=180" yaml:"longitude"`

	// ShutdownTimeout bounds the graceful-shutdown drain of client
	// connections.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls Prometheus metrics collection and the operational
	// HTTP endpoint serving them.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Database configures the relational store backing all persistent
	// state (SQLite by default, PostgreSQL optional).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Images configures the image store backend beyond the folder layout.
	Images ImagesConfig `mapstructure:"images" yaml:"images"`

	// Hosting tunes the hosted-identity lifecycle.
	Hosting HostingConfig `mapstructure:"hosting" yaml:"hosting"`

	// Search tunes the profile search engine.
	Search SearchConfig `mapstructure:"search" yaml:"search"`

	// Neighborhood tunes replication and maintenance timing.
	Neighborhood NeighborhoodConfig `mapstructure:"neighborhood" yaml:"neighborhood"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether traces are exported. Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate in [0,1].
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects the profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures Prometheus metrics and the operational HTTP
// endpoint (/metrics, /healthz, /readyz, /version). When Enabled is false,
// no metrics are collected and no HTTP listener is bound.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the operational endpoint. Default: 9090.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ImagesConfig selects and parameterizes the image store backend.
type ImagesConfig struct {
	// Backend is "fs" (default) or "s3".
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=fs s3" yaml:"backend"`

	// MaxSize caps a single image payload accepted in a profile update.
	// Supports human-readable sizes ("512KB", "1Mi"). Default: 512KB.
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size,omitempty"`

	// S3 parameterizes the s3 backend.
	S3 S3Config `mapstructure:"s3" yaml:"s3,omitempty"`
}

// S3Config holds credentials and addressing for the S3 image backend.
type S3Config struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	Prefix         string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKey      string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey      string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// HostingConfig tunes the hosted-identity lifecycle.
type HostingConfig struct {
	// CancellationRetention is how long a cancelled hosting stays
	// resolvable (for redirects) before the sweeper reaps it.
	CancellationRetention time.Duration `mapstructure:"cancellation_retention" yaml:"cancellation_retention"`

	// MaxRelatedIdentities caps relationship cards per hosted identity.
	MaxRelatedIdentities int `mapstructure:"max_related_identities" yaml:"max_related_identities"`
}

// SearchConfig tunes the profile search engine.
type SearchConfig struct {
	// MatchTimeout bounds a single regex evaluation.
	MatchTimeout time.Duration `mapstructure:"match_timeout" yaml:"match_timeout"`

	// RequestBudget bounds the aggregate regex time of one search.
	RequestBudget time.Duration `mapstructure:"request_budget" yaml:"request_budget"`

	// CacheTTL is how long continuation pages stay fetchable.
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// NeighborhoodConfig tunes replication and peer maintenance timing.
type NeighborhoodConfig struct {
	// WorkerInterval is the action-queue polling interval.
	WorkerInterval time.Duration `mapstructure:"worker_interval" yaml:"worker_interval"`

	// InitializationTimeout bounds one full neighborhood initialization.
	InitializationTimeout time.Duration `mapstructure:"initialization_timeout" yaml:"initialization_timeout"`

	// Expiration is how long a peer may go without refresh before the
	// sweeper purges it and its mirrored profiles.
	Expiration time.Duration `mapstructure:"expiration" yaml:"expiration"`

	// FollowerRefreshPeriod is how often RefreshProfiles is queued to each
	// initialized follower.
	FollowerRefreshPeriod time.Duration `mapstructure:"follower_refresh_period" yaml:"follower_refresh_period"`

	// RecordRefreshInterval is how often the CAN contact record is
	// re-published.
	RecordRefreshInterval time.Duration `mapstructure:"record_refresh_interval" yaml:"record_refresh_interval"`
}

// BindAddress translates ServerInterface into a net listener address.
// "any" binds all interfaces.
func (c *Config) BindAddress() string {
	if strings.EqualFold(c.ServerInterface, "any") {
		return ""
	}
	return c.ServerInterface
}

// AnnouncedAddress is the IP address peers and the location service are
// told to reach this server at.
func (c *Config) AnnouncedAddress() string {
	if c.ExternalAddress != "" {
		return c.ExternalAddress
	}
	return c.ServerInterface
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  profiled init\n\n"+
				"Or specify a custom config file:\n"+
				"  profiled <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  profiled init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path as YAML. Permissions are restricted to the
// owner because the file may carry storage credentials.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variable support and the config file
// search path.
func setupViper(v *viper.Viper, configPath string) {
	// PROFILED_LOGGING_LEVEL=DEBUG overrides logging.level, and so on.
	v.SetEnvPrefix("PROFILED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is not an error; the defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines the decode hooks for custom config types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// config files can write "512KB" or "1Mi".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files can
// write "30s", "12h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, following XDG.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "profiled")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "profiled")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
