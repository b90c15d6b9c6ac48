package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/store"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for the REST API",
	Long: `Sign an HS256 token naming the given user with auth.jwt_secret.
The token expires after auth.token_ttl.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tokenRun(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func tokenRun(ctx context.Context, userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("unknown user %q", userID)
		}
		return err
	}

	resolver := identity.NewResolver(viper.GetString("auth.jwt_secret"), s)
	token, err := resolver.Issue(userID, viper.GetDuration("auth.token_ttl"))
	if errors.Is(err, identity.ErrNoSecret) {
		return fmt.Errorf("auth.jwt_secret is not set (set FIXIT_AUTH_JWT_SECRET or edit the config file)")
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(ui.Out, token)
	return nil
}
