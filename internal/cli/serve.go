package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelconv/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion daemon (HTTP API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Addr
			}
			// Daemon mode logs structured JSON; the console writer is for
			// interactive commands.
			a.log = zerolog.New(os.Stderr).Level(a.log.GetLevel()).With().Timestamp().Logger()
			httpapi.SetLogger(a.log)
			if a.cfg.CORSEnabled {
				httpapi.SetCORSOptions(true,
					a.cfg.CORSOrigins,
					[]string{"GET", "POST", "OPTIONS"},
					[]string{"Accept", "Content-Type"},
				)
			}

			// Cancel in-flight conversions on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			httpapi.SetBaseContext(ctx)

			co := a.coordinator()
			srv := &http.Server{Addr: addr, Handler: httpapi.NewMux(co)}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", addr).Msg("modelconv listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn().Err(err).Msg("graceful shutdown")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080 (defaults from config)")
	return cmd
}
