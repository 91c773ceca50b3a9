package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/config"
)

// NewTokenCmd mints a participant token for local testing against the demo setup.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		identity string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a participant token (dev helper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			secret := cfg.Auth.Secret
			if secret == "" {
				secret = "insecure-dev-secret"
			}
			token, err := auth.NewVerifier(secret).Mint(identity, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "dev-user", "identity key to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
