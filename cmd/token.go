package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/config"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/handler"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

func newTokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			r := model.Role(role)
			switch r {
			case model.RoleUser, model.RoleOwner, model.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q (user, owner or admin)", role)
			}

			tok, err := handler.IssueToken(cfg.JWTSecret, args[0], r, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "role claim: user, owner or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
