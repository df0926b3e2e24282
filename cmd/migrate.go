package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/config"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx := context.Background()

			pool, err := database.NewPool(ctx, cfg.DB, log)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer pool.Close()

			applied, err := database.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("database is up to date")
			}
			for _, name := range applied {
				fmt.Println("applied", name)
			}
			return nil
		},
	}
}
