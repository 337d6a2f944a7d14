// Package config loads and validates the ingestion daemon's runtime
// configuration: database connectivity, source-lister and ASR backend
// selection, pipeline pool sizing, and the segment-optimizer and
// attribution tunables described by the component contracts.
//
// Configuration is read from a TOML file and overlaid with environment
// variables, with environment values taking precedence over file values.
package config
