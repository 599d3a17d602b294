package rulectl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"verifier/internal/rules"
)

type publishOptions struct {
	server  string
	token   string
	timeout time.Duration
}

// NewPublishCmd creates the publish command.
func NewPublishCmd() *cobra.Command {
	opts := publishOptions{}
	cmd := &cobra.Command{
		Use:   "publish <rules.yaml>",
		Short: "Validate a rule file and publish it to a running verifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				opts.token = os.Getenv("VERIFIER_TOKEN")
			}
			return runPublish(cmd.Context(), cmd.OutOrStdout(), http.DefaultClient, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.server, "server", "s", "http://localhost:8080", "verifier base URL")
	cmd.Flags().StringVarP(&opts.token, "token", "t", "", "bearer token (default $VERIFIER_TOKEN)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

type publishResponse struct {
	Version          int64    `json:"version"`
	Rules            []any    `json:"rules"`
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description"`
	Problems         []string `json:"problems"`
}

func runPublish(ctx context.Context, w io.Writer, client *http.Client, path string, opts publishOptions) error {
	rs, err := loadAndValidate(w, path)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	body, err := json.Marshal(struct {
		Rules []rules.Rule `json:"rules"`
	}{Rules: rs})
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	url := strings.TrimRight(opts.server, "/") + "/verification/rules"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", url, err)
	}
	defer resp.Body.Close()

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = color.New(color.FgRed).Fprintf(w, "✗ server rejected the rule set: %s %s\n", out.Error, out.ErrorDescription)
		for _, p := range out.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		return fmt.Errorf("publish failed with status %d", resp.StatusCode)
	}
	_, _ = color.New(color.FgGreen).Fprintf(w, "✓ published snapshot v%d with %d rule(s)\n", out.Version, len(out.Rules))
	return nil
}
