package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", nil, environ())
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:4010", cfg.Server.Address)
	require.EqualValues(t, 64<<20, cfg.Server.MaxRequestBytes)
	require.Zero(t, cfg.Server.RateLimit)
	require.Equal(t, 60*time.Second, cfg.Transport.Timeout)
	require.Equal(t, os.TempDir(), cfg.Download.Dir)
	require.Equal(t, "servicecall", cfg.Secrets.Service)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, LogExporterNone, cfg.Log.Exporter)
}

func TestLoadConfigLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servicecall.toml")
	content := `
[server]
address = "0.0.0.0:8080"
rate_limit = 5.5
rate_burst = 10

[transport]
timeout = "15s"
user_agent = "from-file"

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path,
		map[string]any{"log.format": "json"},
		environ(
			"SERVICECALL_SERVER__ADDRESS=127.0.0.1:9090",
			"SERVICECALL_TRANSPORT__USER_AGENT=from-env",
			"UNRELATED=1",
		),
	)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.Server.Address, "env overrides file")
	require.InDelta(t, 5.5, cfg.Server.RateLimit, 0.0001)
	require.Equal(t, 10, cfg.Server.RateBurst)
	require.Equal(t, 15*time.Second, cfg.Transport.Timeout)
	require.Equal(t, "from-env", cfg.Transport.UserAgent)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format, "overrides win")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"), nil, environ())
	require.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{name: "address", env: "SERVICECALL_SERVER__ADDRESS=not an address"},
		{name: "log level", env: "SERVICECALL_LOG__LEVEL=verbose"},
		{name: "log format", env: "SERVICECALL_LOG__FORMAT=xml"},
		{name: "exporter", env: "SERVICECALL_LOG__EXPORTER=kafka"},
		{name: "negative rate", env: "SERVICECALL_SERVER__RATE_LIMIT=-1"},
		{name: "zero timeout", env: "SERVICECALL_TRANSPORT__TIMEOUT=0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig("", nil, environ(tt.env))
			require.ErrorContains(t, err, "invalid config")
		})
	}
}
