// Package config holds the compiled-in defaults and validation for the
// server and client CLIs (spec §6 "CLI" / "Environment"). Unlike the
// teacher's file-based configuration, this spec takes its settings
// entirely from flags and environment, so there is no config file to
// parse here; what survives from the teacher is its required-key
// validation idiom (summercat.com/config's checkAndParseConfig), applied
// to flag values instead of a parsed map.
package config

import (
	"os"

	"github.com/pkg/errors"
)

// DefaultHost and DefaultPort are used by both the server and client CLIs
// when a flag is left unset (spec §6 "defaults 127.0.0.1:6667").
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = "6667"
)

// ServerConfig holds the server CLI's resolved settings.
type ServerConfig struct {
	Host string
	Port string
}

// Validate checks that every required field is present, mirroring the
// teacher's "missing required key" checks.
func (c ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("missing required setting: host")
	}
	if c.Port == "" {
		return errors.New("missing required setting: port")
	}
	return nil
}

// ClientConfig holds the client CLI's resolved settings.
type ClientConfig struct {
	Host     string
	Port     string
	Username string
}

// Validate checks that every required field is present.
func (c ClientConfig) Validate() error {
	if c.Host == "" {
		return errors.New("missing required setting: host")
	}
	if c.Port == "" {
		return errors.New("missing required setting: port")
	}
	return nil
}

// DefaultUsername resolves the client's default username from the
// environment (spec §6 "Environment: USER or USERNAME for client default
// username"), falling back to "guest" when neither is set.
func DefaultUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	return "guest"
}
