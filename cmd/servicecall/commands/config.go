package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/florianilch/servicecall/internal/app"
)

// flagKeys maps global flags to the config keys they override.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-exporter": "log.exporter",
}

// loadConfig layers explicitly set flags over file, environment and
// defaults. Flag defaults never override other sources.
func loadConfig(path string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}
	return app.LoadConfig(path, overrides, environ)
}
