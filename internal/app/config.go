package app

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/servicecall/internal/secrets"
	"github.com/florianilch/servicecall/internal/server"
	"github.com/florianilch/servicecall/internal/transport"
)

// EnvPrefix prefixes environment variables that override configuration.
// Nested keys are separated by a double underscore, e.g.
// SERVICECALL_SERVER__ADDRESS.
const EnvPrefix = "SERVICECALL_"

// Log exporters.
const (
	LogExporterNone     = "none"
	LogExporterStdout   = "stdout"
	LogExporterOTLPHTTP = "otlp-http"
	LogExporterOTLPGRPC = "otlp-grpc"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Transport TransportConfig `koanf:"transport"`
	Download  DownloadConfig  `koanf:"download"`
	Secrets   SecretsConfig   `koanf:"secrets"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig configures the RPC server.
type ServerConfig struct {
	Address         string  `koanf:"address" validate:"required,listen_addr"`
	MaxRequestBytes int64   `koanf:"max_request_bytes" validate:"gt=0"`
	RateLimit       float64 `koanf:"rate_limit" validate:"gte=0"`
	RateBurst       int     `koanf:"rate_burst" validate:"gte=0"`
}

// TransportConfig configures outbound requests.
type TransportConfig struct {
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	UserAgent string        `koanf:"user_agent"`
}

// DownloadConfig configures where downloaded and uploaded files are staged.
type DownloadConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

// SecretsConfig configures keyring lookups for "keyring:<name>" header values.
type SecretsConfig struct {
	Service string `koanf:"service" validate:"required"`
}

// LogConfig configures logging and the optional OpenTelemetry log export.
type LogConfig struct {
	Level        string `koanf:"level" validate:"oneof=debug info warn error"`
	Format       string `koanf:"format" validate:"oneof=text json"`
	Exporter     string `koanf:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
	OTLPEndpoint string `koanf:"otlp_endpoint" validate:"omitempty,hostname_port"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Defaults returns the configuration used when no other source sets a key.
func Defaults() map[string]any {
	return map[string]any{
		"server.address":           "127.0.0.1:4010",
		"server.max_request_bytes": int64(server.DefaultMaxRequestBytes),
		"server.rate_limit":        0.0,
		"server.rate_burst":        0,
		"transport.timeout":        transport.DefaultTimeout.String(),
		"transport.user_agent":     "servicecall",
		"download.dir":             os.TempDir(),
		"secrets.service":          secrets.DefaultService,
		"log.level":                "info",
		"log.format":               "text",
		"log.exporter":             LogExporterNone,
		"log.otlp_endpoint":        "",
		"log.otlp_insecure":        false,
	}
}

// LoadConfig layers defaults, the TOML file at path, environment variables
// and overrides, later sources winning, and validates the result. An empty
// path skips the file. environ supplies the environment, usually os.Environ.
func LoadConfig(path string, overrides map[string]any, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SERVICECALL_SERVER__RATE_LIMIT to server.rate_limit.
func envKey(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ReplaceAll(strings.ToLower(key), "__", ".")
	return key, value
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("listen_addr", isListenAddr); err != nil {
		return fmt.Errorf("registering validation: %w", err)
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// isListenAddr accepts host:port pairs with a port in 0-65535. Port 0 picks
// a free port.
func isListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err == nil
}
