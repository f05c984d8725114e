package config

import "errors"

// Error kinds returned by Load and Validate.
var (
	// ErrLoadConfig wraps every failure to assemble a Config.
	ErrLoadConfig = errors.New("load config failed")
	// ErrConfigFile marks a CAMPUSFEED_CONFIG file that cannot be read or parsed.
	ErrConfigFile = errors.New("config file")
	// ErrInvalidConfig reports settings the service cannot start with.
	ErrInvalidConfig = errors.New("invalid config")
)
