package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/config"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/sweeper"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release every expired reservation once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sw := &sweeper.Sweeper{Expirer: a.svc, Batch: cfg.SweepBatch, Log: log}
			fmt.Printf("released %d expired reservations\n", sw.RunOnce(ctx))
			return nil
		},
	}
}
