package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/daybook/internal/auth"
	"github.com/lazypower/daybook/internal/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an API token for a user",
	Long:  "Sign a bearer token for user-id with DAYBOOK_JWT_SECRET. A zero --ttl issues a token that never expires.",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(cfg.Auth.JWTSecret) < config.MinJWTSecretLen {
		return fmt.Errorf("%s_JWT_SECRET must be at least %d characters", config.Prefix, config.MinJWTSecretLen)
	}

	token, err := auth.NewHMAC(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).Issue(args[0], tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
