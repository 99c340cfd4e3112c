// Package config loads duotalk configuration from defaults, an
// optional YAML file and DUOTALK_-prefixed environment variables, in
// that order of precedence.
package config
