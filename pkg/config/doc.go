// Package config loads the docmail configuration from a YAML file, a dotenv
// file and the environment, and resolves the client secret from the OS
// keyring when asked to.
package config
