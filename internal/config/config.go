// Package config holds the headless client's runtime configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// ServerURL is the websocket endpoint of the game server.
	ServerURL string
	// SessionFile is where the local session record lives.
	SessionFile string
	// DebugAddr, when set, serves the /state and /healthz debug routes.
	DebugAddr string
	// RejoinTimeout bounds the startup reconnection attempt.
	RejoinTimeout time.Duration
	Verbose       bool
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server URL is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server URL must use ws or wss, got %q", u.Scheme)
	}
	if c.RejoinTimeout < 0 {
		return errors.New("rejoin timeout must not be negative")
	}
	return nil
}

// DefaultSessionFile places the session record under the user config
// directory, falling back to the working directory when none is available.
func DefaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".psych-session.json"
	}
	return filepath.Join(dir, "psych", "session.json")
}
