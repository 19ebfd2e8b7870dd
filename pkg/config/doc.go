// Package config loads the typed YAML configuration: domain/zone layout,
// polling interval, load-balancing thresholds and credentials. ${ENV_VAR}
// references in the file are substituted from the environment before
// decoding, and the whole structure is validated eagerly at load.
package config
