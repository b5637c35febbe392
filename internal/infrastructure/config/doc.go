// Package config handles loading and validating kasad configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Note: this is the service-level config (HTTP bind, UDP bind, discovery
// cadence, logging). The persisted device/broadcast-target document is a
// separate JSON file owned by internal/kasa/kasaconf; this package only
// says where that file lives.
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/kasad.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
