package webclient

import "time"

type Client string

const (
	ClientNetHTTP Client = "nethttp"
)

type Config struct {
	Client    Client        `yaml:"client" json:"client"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	// MaxBodyBytes caps how much of a response is read. Zero means 10 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes"`
}

func DefaultConfig() Config {
	return Config{
		Client:       ClientNetHTTP,
		Timeout:      30 * time.Second,
		UserAgent:    "glimpse/1.0",
		MaxBodyBytes: 10 << 20,
	}
}
