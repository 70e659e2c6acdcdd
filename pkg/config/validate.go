package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags plus
// the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(verrs)
		}
		return err
	}

	return validatePorts(cfg)
}

// validatePorts rejects two roles sharing a port, and the metrics endpoint
// colliding with a role.
func validatePorts(cfg *Config) error {
	ports := map[int]string{}
	roles := []struct {
		name string
		port int
	}{
		{"primary_interface_port", cfg.PrimaryInterfacePort},
		{"client_non_customer_interface_port", cfg.ClientNonCustomerInterfacePort},
		{"client_customer_interface_port", cfg.ClientCustomerInterfacePort},
		{"sr_neighbor_interface_port", cfg.SrNeighborInterfacePort},
	}
	if cfg.Metrics.Enabled {
		roles = append(roles, struct {
			name string
			port int
		}{"metrics.port", cfg.Metrics.Port})
	}

	for _, r := range roles {
		if other, taken := ports[r.port]; taken {
			return fmt.Errorf("%s and %s both use port %d", other, r.name, r.port)
		}
		ports[r.port] = r.name
	}
	return nil
}

// formatValidationErrors renders validator errors with the config key names
// instead of Go field names.
func formatValidationErrors(errs validator.ValidationErrors) error {
	first := errs[0]
	return fmt.Errorf("invalid value for %q (rule: %s)", first.Namespace(), first.Tag())
}
