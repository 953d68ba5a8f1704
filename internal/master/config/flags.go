package config

import (
	"flag"
	"io"

	"github.com/thaispalmer/yn-automation/internal/flagx"
)

var (
	valueFlags = []string{"-c", "-config", "--config", "-d", "-o"}
	boolFlags  = []string{"-v"}
)

// parseFlags overlays command-line flags onto config and returns the
// positional command words.
//
// Supported flags:
//
//	-c, -config string   JSON config file (read by parseJson)
//	-d string            PostgreSQL DSN
//	-o string            output mode: text or json
//	-v                   verbose logging to stderr
func parseFlags(config *Config, args []string) ([]string, error) {
	flags, positional := flagx.Split(args, valueFlags, boolFlags)

	fs := flag.NewFlagSet("yn-master", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configPath string
	fs.StringVar(&configPath, "c", "", "config file")
	fs.StringVar(&configPath, "config", "", "config file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Output, "o", config.Output, "output mode (text|json)")
	fs.BoolVar(&config.Verbose, "v", config.Verbose, "verbose logging to stderr")

	if err := fs.Parse(flags); err != nil {
		return nil, err
	}
	return positional, nil
}
