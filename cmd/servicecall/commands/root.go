package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/servicecall/internal/app"
	"github.com/florianilch/servicecall/internal/observability"
)

// session holds what the root command prepares for its subcommands.
type session struct {
	cfg      *app.Config
	shutdown observability.ShutdownFunc
}

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	return newRootCommand(version, commit).Run(ctx, args)
}

func newRootCommand(version, commit string) *cli.Command {
	s := &session{}

	return &cli.Command{
		Name:    "servicecall",
		Usage:   "Call REST services with cached, lazily refreshed bearer tokens",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars(app.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "additional OpenTelemetry log export (none|stdout|otlp-http|otlp-grpc)",
				Value: app.LogExporterNone,
			},
		},
		Before: s.before,
		After:  s.after,
		Commands: []*cli.Command{
			serveCommand(s),
			tokenCommand(s),
			callCommand(s),
			uploadCommand(s),
			downloadCommand(s),
			secretCommand(s),
		},
	}
}

// before loads the configuration and sets up logging for every subcommand.
func (s *session) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return ctx, fmt.Errorf("failed to load config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return ctx, err
	}

	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:    level,
		Format:   cfg.Log.Format,
		Exporter: cfg.Log.Exporter,
		Endpoint: cfg.Log.OTLPEndpoint,
		Insecure: cfg.Log.OTLPInsecure,
		// Command output goes to stdout; keep it parseable.
		Output: os.Stderr,
	})
	if err != nil {
		return ctx, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	s.cfg = cfg
	s.shutdown = shutdown
	return ctx, nil
}

func (s *session) after(ctx context.Context, _ *cli.Command) error {
	if s.shutdown == nil {
		return nil
	}
	return s.shutdown(context.WithoutCancel(ctx))
}

func serveCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the RPC server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen address (host:port)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := *s.cfg
			if cmd.IsSet("address") {
				cfg.Server.Address = cmd.String("address")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			application, err := app.New(&cfg)
			if err != nil {
				return fmt.Errorf("failed to create app: %w", err)
			}

			slog.InfoContext(ctx, "starting")

			if err := application.Start(ctx); err != nil {
				return fmt.Errorf("app failed to start: %w", err)
			}

			slog.InfoContext(ctx, "stopped gracefully")
			return nil
		},
	}
}
