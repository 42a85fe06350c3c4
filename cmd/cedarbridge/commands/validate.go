package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/engine"
	"github.com/openfroyo/cedarbridge/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the bootstrap config and its policy store",
		Long: `Validate the bootstrap config and the policy store it names.

This command checks:
  - Config syntax and schema conformance
  - Cross-field consistency (log sinks, policy store source)
  - Cedar policy syntax
  - Rego guard compilation
  - The principal rule`,
		Example: `  # Validate the default config
  cedarbridge validate

  # Validate a specific config
  cedarbridge validate --config ./bootstrap.cue

  # Print the effective config with defaults applied
  cedarbridge validate --config ./bootstrap.cue --print-config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log.Info().Str("config", configPath).Msg("Validating configuration")

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			doc, err := policy.NewLoader(log.Logger).Load(cfg.PolicyStore)
			if err != nil {
				return fmt.Errorf("failed to load policy store: %w", err)
			}
			store, err := policy.NewEngine(ctx, doc, log.Logger)
			if err != nil {
				return fmt.Errorf("invalid policy store: %w", err)
			}
			if _, err := engine.CompilePrincipalRule(cfg.Authorization.PrincipalBoolOperator); err != nil {
				return fmt.Errorf("invalid principal rule: %w", err)
			}

			summary := map[string]any{
				"application_name": cfg.ApplicationName,
				"policy_store_id":  store.StoreID(),
				"policies":         store.PolicyIDs(),
				"guards":           store.GuardNames(),
				"log_type":         cfg.Log.Type,
			}
			if jsonOutput {
				if printConfig {
					data, err := config.ExportJSON(cfg)
					if err != nil {
						return fmt.Errorf("failed to export config: %w", err)
					}
					summary["config"] = json.RawMessage(data)
				}
				return printJSON(summary)
			}

			fmt.Printf("✓ Configuration valid: %s\n", configPath)
			fmt.Printf("  Application:  %s\n", cfg.ApplicationName)
			fmt.Printf("  Policy store: %s\n", store.StoreID())
			fmt.Printf("  Policies:     %d\n", len(store.PolicyIDs()))
			for _, id := range store.PolicyIDs() {
				fmt.Printf("    - %s\n", id)
			}
			fmt.Printf("  Guards:       %d\n", len(store.GuardNames()))
			fmt.Printf("  Decision log: %s\n", cfg.Log.Type)

			if printConfig {
				data, err := config.ExportYAML(cfg)
				if err != nil {
					return fmt.Errorf("failed to export config: %w", err)
				}
				fmt.Printf("\n%s", data)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printConfig, "print-config", false, "print the effective config with defaults applied")

	return cmd
}
