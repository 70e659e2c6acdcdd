package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iop-labs/profiled/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample profiled configuration file and, when missing, a
self-signed TLS certificate for the encrypted role listeners.

By default, the configuration file is created at $XDG_CONFIG_HOME/profiled/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  profiled init

  # Initialize with custom path
  profiled init --config /etc/profiled/config.yaml

  # Force overwrite existing config
  profiled init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	fmt.Printf("Configuration file created at: %s\n", configPath)

	// The encrypted roles need TLS material before the server can start.
	// Self-signed is fine: peers never validate certificates, identities
	// travel in-band.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	if _, statErr := os.Stat(cfg.TLSServerCertificate); os.IsNotExist(statErr) {
		if err := config.GenerateSelfSignedCertificate(cfg.TLSServerCertificate, "profiled", false); err != nil {
			return fmt.Errorf("failed to generate TLS certificate: %w", err)
		}
		fmt.Printf("Self-signed TLS certificate created at: %s\n", cfg.TLSServerCertificate)
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to set your GPS position and external address")
	fmt.Println("  2. Start the server with: profiled start")
	fmt.Printf("  3. Or specify custom config: profiled start --config %s\n", configPath)

	return nil
}
