// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A file maps onto the engine configs through Config.StreamConfig and
// Config.BatchConfig.
package config
