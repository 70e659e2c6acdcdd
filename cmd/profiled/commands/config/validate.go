package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iop-labs/profiled/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the profiled configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  profiled config validate

  # Validate specific config file
  profiled config validate --config /etc/profiled/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if _, err := os.Stat(cfg.TLSServerCertificate); os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("TLS certificate not found at %s - run 'profiled init' or provide one", cfg.TLSServerCertificate))
	}
	if cfg.ExternalAddress == "" {
		warnings = append(warnings, "external_address not set - the bind interface will be announced to peers")
	}
	if cfg.Latitude == 0 && cfg.Longitude == 0 {
		warnings = append(warnings, "latitude/longitude not set - neighborhood placement will be wrong")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:    %s\n", cfg.Database.Type)
	fmt.Printf("  Primary port:     %d\n", cfg.PrimaryInterfacePort)
	fmt.Printf("  Location service: %s\n", cfg.LocationServiceEndpoint)
	fmt.Printf("  Log level:        %s\n", cfg.Logging.Level)

	return nil
}
