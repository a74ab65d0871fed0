package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docmail/docmail/pkg/api"
	"github.com/docmail/docmail/pkg/telemetry"
	"github.com/docmail/docmail/pkg/version"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.serve(ctx)
		},
	}
}

func (rt *runtimeState) serve(ctx context.Context) error {
	log := rt.log
	log.Infow("Starting docmail API", "version", version.Version, "backend", rt.cfg.Mail.Backend)

	_, shutdownTracing, err := telemetry.Init(ctx, telemetry.FromConfig(rt.cfg.Telemetry, version.Version, log))
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warnw("Tracer shutdown failed", "error", err)
		}
	}()

	app, err := NewApp(*rt.cfg, log)
	if err != nil {
		return err
	}

	server := api.NewServer(log.Desugar(), *rt.cfg, rt.debug, app.Dependencies())
	defer server.Close()

	log.Infow("Listening", "address", rt.cfg.Server.ListenAddress, "tls", rt.cfg.Server.TLSCertFile != "")
	return server.Listen(ctx)
}
