// Package rulectl implements the rule administration CLI.
package rulectl

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the rulectl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "rulectl",
		Short: "Validate, try out and publish verification rule sets",
		Long: `rulectl works with the YAML rule files the verifier loads.
It checks a file against the built-in checks and handlers, evaluates sample
requests locally, and publishes a file to a running server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		NewValidateCmd(),
		NewEvaluateCmd(),
		NewPublishCmd(),
		NewTokenCmd(),
	)
	return root
}
