package config

import (
	"flag"
	"io"

	"github.com/thaispalmer/yn-automation/internal/flagx"
)

var (
	valueFlags = []string{"-c", "-config", "--config", "-l"}
	boolFlags  = []string{"-v"}
)

// parseFlags overlays command-line flags onto config.
//
//	-c, -config string   JSON config file
//	-l string            agent listen address for serve
//	-v                   verbose logging to stderr
func parseFlags(config *Config, args []string) ([]string, error) {
	flags, positional := flagx.Split(args, valueFlags, boolFlags)

	fs := flag.NewFlagSet("yn-shard", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configPath string
	fs.StringVar(&configPath, "c", "", "config file")
	fs.StringVar(&configPath, "config", "", "config file")
	fs.StringVar(&config.Listen, "l", config.Listen, "listen address")
	fs.BoolVar(&config.Verbose, "v", config.Verbose, "verbose logging to stderr")

	if err := fs.Parse(flags); err != nil {
		return nil, err
	}
	return positional, nil
}
