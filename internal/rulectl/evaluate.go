package rulectl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"verifier/internal/rules"
	"verifier/internal/rules/engine"
)

// NewEvaluateCmd creates the evaluate command.
func NewEvaluateCmd() *cobra.Command {
	var (
		requestPath string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate <rules.yaml>",
		Short: "Evaluate a sample request against a rule file locally",
		Long: `evaluate runs the rule engine in-process. Nothing is audited.
The request is a JSON ValidationRequest read from --request or stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if requestPath != "" && requestPath != "-" {
				f, err := os.Open(requestPath)
				if err != nil {
					return fmt.Errorf("open request: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runEvaluate(cmd.Context(), cmd.OutOrStdout(), args[0], in, asJSON)
		},
	}
	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "request JSON file (default stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return cmd
}

func runEvaluate(ctx context.Context, w io.Writer, rulesPath string, in io.Reader, asJSON bool) error {
	rs, err := loadAndValidate(io.Discard, rulesPath)
	if err != nil {
		return err
	}
	var req rules.ValidationRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	snap := rules.NewSnapshot(1, time.Now().UTC(), rs)
	res, err := engine.New(engine.DefaultRegistry()).Evaluate(ctx, req, snap)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(w, res)
	return nil
}

func printResult(w io.Writer, res *rules.ValidationResult) {
	_, _ = color.New(color.Bold).Fprintf(w, "Status: %s\n", statusString(res.Status))
	fmt.Fprintf(w, "%s\n\n", res.Message)
	for _, o := range res.RuleOutcomes {
		switch {
		case o.Error:
			_, _ = color.New(color.FgMagenta).Fprintf(w, "  ! %s v%d: ERROR (%s)\n", o.RuleID, o.RuleVersion, o.Message)
		case o.Outcome == rules.StatusPass:
			_, _ = color.New(color.FgGreen).Fprintf(w, "  ✓ %s v%d: PASS\n", o.RuleID, o.RuleVersion)
		case o.Outcome == rules.StatusWarn:
			_, _ = color.New(color.FgYellow).Fprintf(w, "  ○ %s v%d: WARN (%s)\n", o.RuleID, o.RuleVersion, o.Message)
		default:
			_, _ = color.New(color.FgRed).Fprintf(w, "  ✗ %s v%d: FAIL %s (%s)\n", o.RuleID, o.RuleVersion, o.ActionOnFail, o.Message)
		}
	}
}

func statusString(s rules.Status) string {
	switch s {
	case rules.StatusPass:
		return color.GreenString(string(s))
	case rules.StatusWarn:
		return color.YellowString(string(s))
	case rules.StatusNeedsReview:
		return color.MagentaString(string(s))
	default:
		return color.RedString(string(s))
	}
}
