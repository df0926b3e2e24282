package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/config"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/handler"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/obs"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/sweeper"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			shutdownTracing, err := obs.Init(ctx, obs.Config{
				Enabled:     cfg.OtelEnabled,
				Endpoint:    cfg.OtelEndpoint,
				ServiceName: "futsald",
				Version:     Version,
				Environment: cfg.AppEnv,
			})
			if err != nil {
				return err
			}
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				_ = shutdownTracing(sctx)
			}()

			a, err := buildApp(ctx, cfg, log, migrateUp)
			if err != nil {
				return err
			}
			defer a.Close()
			log.Info("connected to PostgreSQL")

			// sweeper
			sw := &sweeper.Sweeper{Expirer: a.svc, Interval: cfg.SweepInterval, Batch: cfg.SweepBatch, Log: log}
			swDone := make(chan struct{})
			go func() {
				defer close(swDone)
				_ = sw.Run(ctx)
			}()

			remindDone := make(chan struct{})
			if cfg.RemindersEnabled {
				rem := &sweeper.Daily{Reminder: a.svc, Hour: cfg.ReminderHour, Location: cfg.Location(), Log: log}
				go func() {
					defer close(remindDone)
					_ = rem.Run(ctx)
				}()
			} else {
				close(remindDone)
			}

			h := handler.NewBookingHandler(a.svc, log, !cfg.Production())
			srv := &http.Server{
				Addr:         fmt.Sprintf(":%s", cfg.Port),
				Handler:      handler.Router(h, cfg.JWTSecret, log),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				log.Info("server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errc:
				cancel()
				<-swDone
				<-remindDone
				return fmt.Errorf("server error: %w", err)
			}

			log.Info("shutting down server")
			shutdownCtx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer scancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			<-swDone
			<-remindDone
			log.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
