// Package config provides configuration loading and validation for the live caption service.
// Settings come from a YAML file over built-in defaults, secrets may be supplied through
// a .env file or the environment, which always wins over the file.
package config
