// Package config loads rookery configuration with viper from defaults, an
// optional YAML file, ROOKERY_* environment variables and command-line flags.
package config
