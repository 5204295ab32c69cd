// Package config handles loading and validating gateway client configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with AZOULA_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The gateway MQTT password should be set via AZOULA_MQTT_PASSWORD
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/azoula.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.ID)
package config
