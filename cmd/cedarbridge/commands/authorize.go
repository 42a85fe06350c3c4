package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
)

func newAuthorizeCommand() *cobra.Command {
	var (
		requestPath string
		showLog     bool
	)

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Evaluate a signed authorization request",
		Long: `Evaluate an authorization request whose principals are derived from JWTs.

The request document is JSON:

  {
    "tokens":   {"access_token": "...", "id_token": "...", "userinfo_token": "..."},
    "action":   "Jans::Action::\"Read\"",
    "resource": {"type": "Jans::Issue", "id": "42", "attributes": {}},
    "context":  {}
  }`,
		Example: `  # Evaluate a request file
  cedarbridge authorize --request ./request.json

  # Read the request from stdin and print decision log entries
  cat request.json | cedarbridge authorize --request - --show-log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var req authz.Request
			if err := readInput(requestPath, &req); err != nil {
				return err
			}

			h, cfg, err := newHost(ctx)
			if err != nil {
				return err
			}
			defer h.close()

			log.Debug().Str("action", req.Action).Strs("tokens", req.TokenNames()).Msg("Authorizing signed request")
			res, err := h.cedarling.Authorize(req)
			if err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}
			return report(ctx, h, cfg, res, showLog)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "-", "request file path, - for stdin")
	cmd.Flags().BoolVar(&showLog, "show-log", false, "print decision log entries of a MEMORY log")

	return cmd
}

func newAuthorizeUnsignedCommand() *cobra.Command {
	var (
		requestPath string
		showLog     bool
	)

	cmd := &cobra.Command{
		Use:   "authorize-unsigned",
		Short: "Evaluate an unsigned authorization request",
		Long: `Evaluate an authorization request whose principals are given explicitly.

The request document is JSON:

  {
    "principals": [{"type": "Jans::User", "id": "alice", "attributes": {"role": ["admin"]}}],
    "action":     "Jans::Action::\"Read\"",
    "resource":   {"type": "Jans::Issue", "id": "42"},
    "context":    {}
  }`,
		Example: `  # Evaluate a request file
  cedarbridge authorize-unsigned --request ./request.json --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var req authz.RequestUnsigned
			if err := readInput(requestPath, &req); err != nil {
				return err
			}

			h, cfg, err := newHost(ctx)
			if err != nil {
				return err
			}
			defer h.close()

			log.Debug().Str("action", req.Action).Int("principals", len(req.Principals)).Msg("Authorizing unsigned request")
			res, err := h.cedarling.AuthorizeUnsigned(req)
			if err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}
			return report(ctx, h, cfg, res, showLog)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "-", "request file path, - for stdin")
	cmd.Flags().BoolVar(&showLog, "show-log", false, "print decision log entries of a MEMORY log")

	return cmd
}

// report prints a result and, on request, its decision log entries.
func report(ctx context.Context, h *host, cfg *config.BootstrapConfig, res *authz.Result, showLog bool) error {
	out := map[string]any{"result": res}

	if showLog {
		mem, ok := h.engine.DecisionLog().Memory()
		if !ok {
			return fmt.Errorf("--show-log needs a MEMORY decision log, config has %s", cfg.Log.Type)
		}
		entries, err := mem.ByRequestID(ctx, res.RequestID)
		if err != nil {
			return fmt.Errorf("failed to read decision log: %w", err)
		}
		out["log"] = entries
	}

	if jsonOutput {
		return printJSON(out)
	}

	verdict := "DENY"
	if res.Decision {
		verdict = "ALLOW"
	}
	fmt.Printf("Decision:   %s\n", verdict)
	fmt.Printf("Request ID: %s\n", res.RequestID)

	keys := make([]string, 0, len(res.Principals))
	for k := range res.Principals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		resp := res.Principals[k]
		fmt.Printf("  %s: %s\n", k, resp.Decision)
		for _, r := range resp.Diagnostics.Reason {
			fmt.Printf("    reason: %s\n", r)
		}
		for _, e := range resp.Diagnostics.Errors {
			fmt.Printf("    error:  %s\n", e)
		}
	}

	if entries, ok := out["log"]; ok {
		fmt.Println("Decision log:")
		return printJSON(entries)
	}
	return nil
}
