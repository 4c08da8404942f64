package cli

import (
	"flag"
	"io"
	"strings"
)

// CLIArgs are the command-line arguments of the glimpse server.
type CLIArgs struct {
	// ConfigPath is an optional YAML config file.
	ConfigPath string

	// Addr overrides the configured listen address when set.
	Addr string

	// LogLevel overrides the configured log level when set.
	LogLevel string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("glimpse", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "Path to a YAML config file")
		addr       = fs.String("addr", "", "HTTP listen address, e.g. :8080 (overrides config)")
		logLevel   = fs.String("log-level", "", "debug|info|warn|error (overrides config)")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &CLIArgs{
		ConfigPath: strings.TrimSpace(*configPath),
		Addr:       strings.TrimSpace(*addr),
		LogLevel:   strings.ToLower(strings.TrimSpace(*logLevel)),
		RawArgs:    args,
	}, nil
}
