// Package config loads the DealPilot daemon configuration from a YAML or JSON
// file, fills defaults and applies DEALPILOT_* environment overrides.
package config
