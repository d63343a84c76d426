// Package config handles loading and validating DREAMS control core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DREAMS_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Secrets (MQTT password, InfluxDB token) should be set via environment
// variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Master.Service)
package config
