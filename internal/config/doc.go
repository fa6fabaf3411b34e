// Package config loads the node configuration: defaults, then an optional
// YAML file, then positional command-line arguments.
package config
