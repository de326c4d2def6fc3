package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/crucible/internal/catalog"
	"github.com/dyluth/crucible/internal/printer"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/spf13/cobra"
)

var (
	cacheOutputFormat string
	cacheMatch        string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage cached combinations",
	Long: `The cache remembers every answer the generative model gave, including
pairs that do not combine, so each pair is only asked about once.

Transport failures are never cached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached combinations",
	Long: `List cached combinations in key order.

Examples:
  # Everything
  crucible cache list

  # Only pairs involving Fire
  crucible cache list --match '*Fire*'

  # Pipe to jq
  crucible cache list -o jsonl | jq 'select(.result.success)'`,
	Args: cobra.NoArgs,
	RunE: runCacheList,
}

var cacheForgetCmd = &cobra.Command{
	Use:   "forget <A> <B>",
	Short: "Remove one pair from the cache so it is resolved again",
	Args:  cobra.ExactArgs(2),
	RunE:  runCacheForget,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached combination",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheListCmd.Flags().StringVarP(&cacheOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	cacheListCmd.Flags().StringVar(&cacheMatch, "match", "", "Only keys matching this glob (keys look like 'Fire|Water')")

	cacheCmd.AddCommand(cacheListCmd, cacheForgetCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(cacheOutputFormat)
	if err != nil {
		return err
	}

	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	entries := catalog.CacheEntries(a.engine.Cache().Entries(), cacheMatch)
	return catalog.FormatEntries(cmd.OutOrStdout(), entries, "cached combinations", format)
}

func runCacheForget(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	key := alchemy.CombinationKey(args[0], args[1])
	if !a.engine.Cache().Delete(ctx, key) {
		return printer.Error(
			fmt.Sprintf("'%s' is not cached", key),
			"Nothing to forget. Recipes are never cached.",
			[]string{"List cached pairs:\n  crucible cache list"},
		)
	}
	printer.Success("Forgot %s\n", key)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.engine.Cache().Len()
	if err := a.engine.Cache().Clear(ctx); err != nil {
		return printer.ErrorWithContext("failed to clear cache", err.Error(), map[string]string{"Namespace": a.namespace()}, nil)
	}
	printer.Success("Cleared %d cached combinations\n", n)
	return nil
}
