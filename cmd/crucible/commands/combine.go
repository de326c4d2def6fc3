package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/crucible/internal/catalog"
	"github.com/dyluth/crucible/internal/engine"
	"github.com/dyluth/crucible/internal/printer"
	"github.com/spf13/cobra"
)

var (
	combineAPIKey string
	combineJSON   bool
)

var combineCmd = &cobra.Command{
	Use:   "combine <A> <B>",
	Short: "Combine two elements from your library",
	Long: `Combine two elements and print the result.

Resolution order:
  1. Recipe table (instant, never cached)
  2. Cache of earlier answers (successes and invalid mixes)
  3. Generative model (needs a credential)

A new element is added to your library and announced.

Examples:
  # A recipe
  crucible combine Water Fire

  # Use a one-off API key instead of the stored or environment credential
  crucible combine Cloud Fire --api-key "$KEY"

  # Machine-readable outcome
  crucible combine Water Water --json`,
	Args: cobra.ExactArgs(2),
	RunE: runCombine,
}

func init() {
	combineCmd.Flags().StringVar(&combineAPIKey, "api-key", "", "Credential for this invocation only (takes precedence over stored and environment)")
	combineCmd.Flags().BoolVar(&combineJSON, "json", false, "Print the outcome as JSON")
	rootCmd.AddCommand(combineCmd)
}

// combineOutput is the --json form of an outcome.
type combineOutput struct {
	engine.Outcome
	Reason engine.Reason `json:"reason,omitempty"`
}

func runCombine(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if combineAPIKey != "" {
		a.override.Set(combineAPIKey)
	}

	lib := a.engine.Library()
	first, ok := lib.Get(args[0])
	if !ok {
		return unknownElementError(args[0])
	}
	second, ok := lib.Get(args[1])
	if !ok {
		return unknownElementError(args[1])
	}

	out, combineErr := a.engine.Combine(ctx, first, second)

	if combineJSON {
		return catalog.FormatSingleJSON(cmd.OutOrStdout(), combineOutput{Outcome: out, Reason: engine.ReasonOf(combineErr)})
	}

	if combineErr != nil {
		return combineFailure(args[0], args[1], combineErr)
	}

	printer.Info("%s + %s → ", first.Name, second.Name)
	printer.Element(*out.Result.Element, true)
	printer.Printf("   (resolved by %s)\n", out.Tier)
	if out.New {
		printer.Discovery(*out.Result.Element)
	}
	return nil
}

func unknownElementError(name string) error {
	return printer.Error(
		fmt.Sprintf("unknown element '%s'", name),
		"Only elements in your library can be combined. Names are case-sensitive.",
		[]string{"List starter combinations:\n  crucible recipes"},
	)
}

func combineFailure(a, b string, err error) error {
	switch engine.ReasonOf(err) {
	case engine.ReasonNoCredential:
		return printer.Error(
			"no credential for the generative model",
			fmt.Sprintf("%s + %s has no recipe or cached answer, and no API key is configured.", a, b),
			[]string{
				"Store one:\n  crucible credential set <KEY>",
				"Or export GEMINI_API_KEY",
				"Or pass --api-key for this invocation",
			},
		)
	case engine.ReasonResolverError:
		return printer.ErrorWithContext(
			"generative model unavailable",
			fmt.Sprintf("Could not resolve %s + %s. The answer was not cached, so trying again may work.", a, b),
			map[string]string{"Error": err.Error()},
			nil,
		)
	default:
		return printer.Error(
			"nothing happened",
			fmt.Sprintf("%s and %s do not combine.", a, b),
			nil,
		)
	}
}
