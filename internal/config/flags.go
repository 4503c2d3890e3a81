package config

import (
	"flag"
	"io"
	"strings"
)

// flagNames are the flags handled here; anything else in args is ignored so
// the binaries can add their own.
var flagNames = []string{"-a", "-d", "-r", "-k", "-l"}

// parseFlags overlays:
//
//	-a string   HTTP listen address (":8080")
//	-d string   MySQL DSN
//	-r string   Redis address
//	-k string   kiosk API key
//	-l string   log level
func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("portal", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.HTTPAddr, "a", c.HTTPAddr, "HTTP listen address")
	fs.StringVar(&c.MySQLDSN, "d", c.MySQLDSN, "MySQL DSN")
	fs.StringVar(&c.RedisAddr, "r", c.RedisAddr, "Redis address")
	fs.StringVar(&c.KioskKey, "k", c.KioskKey, "kiosk API key")
	fs.StringVar(&c.LogLevel, "l", c.LogLevel, "log level")

	return fs.Parse(filterArgs(args, flagNames))
}

// filterArgs keeps only the flags in allowed, with their values.
func filterArgs(args, allowed []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		name, _, hasValue := strings.Cut(args[i], "=")
		name = "-" + strings.TrimLeft(name, "-")
		if !contains(allowed, name) {
			continue
		}
		out = append(out, args[i])
		if !hasValue && i+1 < len(args) {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
