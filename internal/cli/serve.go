package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/addiskers/webp/internal/config"
	"github.com/addiskers/webp/internal/port"
	"github.com/addiskers/webp/internal/server"
)

// serveFlags holds the flag values for the serve command. Flags left
// unset fall through to the config file and environment.
type serveFlags struct {
	host     string
	port     int
	autoPort bool
}

// NewServeCommand creates the "serve" command, which runs the upload form.
func NewServeCommand() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web upload form",
		Long: `Serve the JPEG to WebP upload form over HTTP.

Configuration is read from defaults, then --config, then environment
variables (HOST, PORT, SECRET_KEY, ...), then these flags.

Examples:
  webp-converter serve
  webp-converter serve --port 8080
  webp-converter serve --auto-port --config webp.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, flags.autoPort)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", config.DefaultHost, "Address to bind")
	cmd.Flags().IntVarP(&flags.port, "port", "p", config.DefaultPort, "Port to listen on")
	cmd.Flags().BoolVar(&flags.autoPort, "auto-port", false,
		"Pick a nearby free port when the requested one is taken")

	return cmd
}

// loadServeConfig layers explicitly set flags over config.Load.
func loadServeConfig(cmd *cobra.Command, flags *serveFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = flags.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flags.port
	}
	return cfg, nil
}

// runServe resolves the listening port and serves until SIGINT or SIGTERM.
func runServe(ctx context.Context, cfg *config.Config, autoPort bool) error {
	logger, err := NewLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	resolved, err := port.NewScanner(cfg.Host).Resolve(cfg.Port, autoPort)
	if err != nil {
		return err
	}
	if resolved != cfg.Port {
		logger.WithField("requested", cfg.Port).WithField("port", resolved).Warn("requested port busy, using another")
		cfg.Port = resolved
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
