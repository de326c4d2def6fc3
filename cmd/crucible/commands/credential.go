package commands

import (
	"context"
	"strings"

	"github.com/dyluth/crucible/internal/config"
	"github.com/dyluth/crucible/internal/credential"
	"github.com/dyluth/crucible/internal/printer"
	"github.com/spf13/cobra"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage the API key used by the generative model",
	Long: `Manage the stored API key.

Keys are looked up in this order, first non-empty wins:
  1. --api-key on the current command
  2. The stored key (crucible credential set)
  3. Environment variables (generative.credential_env, default GEMINI_API_KEY, API_KEY)
  4. The deployment fallback (generative.fallback_credential_env), if configured

Recipes and cached answers never need a key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <KEY>",
	Short: "Store an API key in the configured backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialSet,
}

var credentialClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE:  runCredentialClear,
}

var credentialStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credential source is in effect",
	Args:  cobra.NoArgs,
	RunE:  runCredentialStatus,
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd, credentialClearCmd, credentialStatusCmd)
	rootCmd.AddCommand(credentialCmd)
}

func runCredentialSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	value := strings.TrimSpace(args[0])
	if value == "" {
		return printer.Error("empty credential", "The key cannot be blank.", []string{"To remove the stored key:\n  crucible credential clear"})
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.stored.Set(ctx, value); err != nil {
		return printer.ErrorWithContext("failed to store credential", err.Error(), map[string]string{"Backend": a.cfg.Storage.Backend}, nil)
	}
	printer.Success("Stored credential %s\n", credential.Mask(value))
	if a.cfg.Storage.Backend == config.BackendMemory {
		printer.Warning("The memory backend forgets the key when this command exits. Use the file or redis backend to keep it.\n")
	}
	return nil
}

func runCredentialClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.stored.Clear(ctx); err != nil {
		return printer.ErrorWithContext("failed to clear credential", err.Error(), map[string]string{"Backend": a.cfg.Storage.Backend}, nil)
	}
	printer.Success("Stored credential removed\n")
	return nil
}

func runCredentialStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cred, ok := a.chain.Resolve(ctx)
	if !ok {
		printer.Warning("No credential configured. Recipes and cached answers still work.\n")
		return nil
	}
	printer.Success("Using %s credential %s\n", cred.Source, credential.Mask(cred.Value))
	return nil
}
