package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/config"
)

func newRemindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind [date]",
		Short: "Send booking reminders for a date (default tomorrow) and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			date := time.Now().In(cfg.Location()).AddDate(0, 0, 1).Format("2006-01-02")
			if len(args) == 1 {
				date = args[0]
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.svc.SendReminders(ctx, date)
			if err != nil {
				return err
			}
			fmt.Printf("sent %d reminders for %s\n", n, date)
			return nil
		},
	}
}
