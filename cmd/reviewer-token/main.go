package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/chartreview/pkg/common/config"
	"github.com/synaptica-ai/chartreview/pkg/gateway/auth"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var identity auth.Identity

	cmd := &cobra.Command{
		Use:   "reviewer-token",
		Short: "Issue a signed service token for a chart reviewer",
		Long: "Issues an HS256 token accepted by the adjudication and audit services when no\n" +
			"OIDC issuer is configured. Signing settings come from JWT_SECRET, JWT_ISSUER,\n" +
			"JWT_AUDIENCE and JWT_TTL.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			manager, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
			if err != nil {
				return err
			}
			token, err := manager.IssueToken(identity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&identity.Subject, "subject", "", "reviewer id recorded on adjudication events")
	cmd.Flags().StringVar(&identity.Email, "email", "", "reviewer email")
	cmd.Flags().StringVar(&identity.Name, "name", "", "reviewer display name")
	cmd.Flags().StringVar(&identity.Role, "role", "reviewer", "reviewer role")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
