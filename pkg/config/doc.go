// Package config loads service configuration from the environment and an
// optional YAML file.
//
// The API key is read only from the environment (API_KEY, optionally via
// a .env file). Everything else lives in the YAML file named by
// DETECTIVE_CONFIG; a missing file yields Default().
package config
