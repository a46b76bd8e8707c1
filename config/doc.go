// Package config assembles the store configuration from a JSON file,
// defaults, and NESSIE_* environment overrides.
package config
