// Package config provides configuration loading and validation for the SOS
// alert service. It handles YAML-based configuration, fills unset values with
// the mobile defaults and validates every section before use.
package config
