// Package config loads and validates the bridge configuration.
//
// Loading order: built-in defaults, then the YAML file, then ACBRIDGE_*
// environment variables. Credentials are best supplied through the
// environment; keep the config file at 0600 if it carries them.
//
//	cfg, err := config.Load(config.PathFromEnv())
//	if err != nil {
//	    return err
//	}
package config
