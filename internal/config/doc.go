// Package config loads and validates runtime configuration for masterd.
//
// Values come from four layers, in increasing priority: viper defaults, an
// optional YAML file named config (in . or ./config), environment
// variables prefixed MASTERD_, and the legacy `$name value`
// prefs file (see prefs.go), whose parsed values are pushed into viper
// via explicit Set calls and therefore win (see config.go for keys).
package config
