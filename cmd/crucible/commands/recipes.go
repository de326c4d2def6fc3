package commands

import (
	"fmt"

	"github.com/dyluth/crucible/internal/catalog"
	"github.com/dyluth/crucible/internal/printer"
	"github.com/dyluth/crucible/internal/recipes"
	"github.com/spf13/cobra"
)

var recipesOutputFormat string

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "List the built-in recipe table",
	Long: `List every hard-coded ingredient pair and what it makes.

Recipes resolve instantly and need no storage or credential.

Output Formats:
  default - Table of ingredients, result and description
  jsonl   - Line-delimited JSON, one combination per line`,
	Args: cobra.NoArgs,
	RunE: runRecipes,
}

func init() {
	recipesCmd.Flags().StringVarP(&recipesOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(recipesCmd)
}

func runRecipes(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(recipesOutputFormat)
	if err != nil {
		return err
	}
	return catalog.FormatEntries(cmd.OutOrStdout(), catalog.RecipeEntries(recipes.Default()), "recipes", format)
}

// parseOutputFormat validates an --output flag, printing a formatted error.
func parseOutputFormat(s string) (catalog.OutputFormat, error) {
	format, err := catalog.ParseFormat(s)
	if err != nil {
		return "", printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", s),
			[]string{"Valid formats: default, jsonl"},
		)
	}
	return format, nil
}
