// Package config defines the application settings and loads them with viper
// from, in increasing precedence, built-in defaults, an optional YAML file,
// FLOWGRID_* environment variables and bound command-line flags.
package config
