package main

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/unbound-force/mosaic/internal/report"
	"github.com/unbound-force/mosaic/internal/scaffold"
)

// logger is the application-wide structured logger (writes to stderr).
var logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: false,
})

// Set by build flags.
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:   "mosaic",
		Short: "Mosaic: many-objective search-based unit test generation",
		Long: `Mosaic evolves unit tests for a class under test with the
many-objective sorting algorithm (MOSA), treating every coverage goal
of the selected criteria as a separate objective.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logger.SetLevel(charmlog.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false,
		"log per-generation statistics")

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newGoalsCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newInitCmd())
	return root
}

func newSchemaCmd() *cobra.Command {
	var goals bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for mosaic reports",
		Long: `Print the JSON Schema (Draft 2020-12) that documents the
structure of mosaic generate --format=json output, or with --goals
the output of mosaic goals --format=json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema := report.Schema
			if goals {
				schema = report.GoalsSchema
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), schema)
			return err
		},
	}
	cmd.Flags().BoolVar(&goals, "goals", false,
		"print the goal listing schema")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter .mosaic.yaml and an example subject",
		Long: `Write a starter .mosaic.yaml and mosaic/example.yaml into the
current directory. Existing files are kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := scaffold.Run(scaffold.Options{
				Force:   force,
				Version: version,
				Stdout:  cmd.OutOrStdout(),
			})
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false,
		"overwrite existing files")
	return cmd
}

func validateFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
	}
	return nil
}
