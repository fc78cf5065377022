// Package config provides configuration types and loading for avakeys.
//
// This package defines the configuration model, YAML loading with
// environment variable substitution, defaults and validation.
//
// # Configuration Loading
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("avakeys.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// Values may reference the environment with ${VAR} or ${VAR:-default}:
//
//	security:
//	  masterSecret: "${AVAKEYS_MASTER_SECRET}"
//	  hashSalt: "${AVAKEYS_HASH_SALT:-}"
//
// # Profiles
//
// The development profile tolerates a missing master secret or hash salt
// and substitutes generated values with a loud warning. The production
// profile rejects both at validation time.
package config
