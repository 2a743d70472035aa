package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Consult/internal/adapters/control"
	router "github.com/dkeye/Consult/internal/adapters/http"
	"github.com/dkeye/Consult/internal/adapters/rtc"
	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/core"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control socket and REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			devices, err := deps.Devices()
			if err != nil {
				return fmt.Errorf("opening capture drivers: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			ctl := &control.Controller{
				Devices:      devices,
				Rooms:        deps.Rooms,
				NewTransport: func() core.Transport { return rtc.NewClient(cfg.RTC) },
				Speaker:      cfg.Speaker,
				Labels:       cfg.Chat.Labels,
				ReleaseProbe: cfg.Meeting.ReleaseProbe,
				Origins:      cfg.AllowedOrigins,
				Limiter:      control.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval),
				Policy:       app.SimplePolicy{},
				SendBuffer:   cfg.RTC.SendBuffer,
				ReadLimit:    cfg.ReadLimit,
				PingPeriod:   cfg.PingPeriod,
			}

			r := router.SetupRouter(ctx, cfg, router.Deps{
				Control: ctl,
				Rooms:   deps.Rooms,
				Devices: devices,
			})
			addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)

			srv := &http.Server{
				Addr:    addr,
				Handler: r,
			}

			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("Consult agent started")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errc <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errc:
				return fmt.Errorf("server: %w", err)
			}
			log.Info().Msg("Shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
			}
			log.Info().Msg("Server exited gracefully")
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}
