package rulectl

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"verifier/internal/rules"
	"verifier/internal/rules/engine"
)

// ErrInvalid is returned when a rule file has problems; they are already printed.
var ErrInvalid = errors.New("rule file is invalid")

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules.yaml>",
		Short: "Check a rule file without publishing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadAndValidate(cmd.OutOrStdout(), args[0])
			return err
		},
	}
}

// loadAndValidate applies the same checks a publish would.
func loadAndValidate(w io.Writer, path string) ([]rules.Rule, error) {
	rs, err := rules.LoadFile(path)
	if err != nil {
		return nil, err
	}
	err = rules.Normalize(rs)
	if err == nil {
		err = rules.ValidateRuleSet(rs, engine.DefaultRegistry())
	}
	var invalid *rules.InvalidRuleSetError
	if errors.As(err, &invalid) {
		red := color.New(color.FgRed)
		_, _ = red.Fprintf(w, "✗ %s: %d problem(s)\n", path, len(invalid.Problems))
		for _, p := range invalid.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		return nil, ErrInvalid
	}
	if err != nil {
		return nil, err
	}
	_, _ = color.New(color.FgGreen).Fprintf(w, "✓ %s: %d rule(s) OK\n", path, len(rs))
	return rs, nil
}
