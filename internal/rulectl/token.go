package rulectl

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	jwttoken "verifier/internal/jwt_token"
)

// NewTokenCmd creates the token command. It mints development tokens with
// the same issuer and audience the server checks.
func NewTokenCmd() *cobra.Command {
	var (
		actor string
		key   string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("JWT_SIGNING_KEY")
			}
			if key == "" {
				return fmt.Errorf("a signing key is required (--key or $JWT_SIGNING_KEY)")
			}
			svc := jwttoken.NewJWTService(key, jwttoken.DefaultIssuer, jwttoken.DefaultAudience)
			tok, err := svc.GeneratePrincipalToken(actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&actor, "actor", "a", "", "actor id carried by the token")
	cmd.Flags().StringVarP(&key, "key", "k", "", "HMAC signing key (default $JWT_SIGNING_KEY)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
