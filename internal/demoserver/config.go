package demoserver

import "fmt"

// Config controls the demo site.
type Config struct {
	// Port to listen on.
	Port int

	// InitialVersion every page starts at. Values below 1 mean 1.
	InitialVersion int
}

// DefaultConfig listens on 9999 with every page at its accessible baseline.
func DefaultConfig() Config {
	return Config{
		Port:           9999,
		InitialVersion: 1,
	}
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
