package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dsandi/seed-it/internal/config"
	"github.com/dsandi/seed-it/internal/database"
	"github.com/dsandi/seed-it/internal/depgraph"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the live schema's dependency structure",
	Long:  `Connect to the database, read the schema and print the foreign-key insertion order, circular dependencies and self-referencing tables a seed run would have to honor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		dbURL, err := cfg.GetDatabaseURL()
		if err != nil {
			return err
		}

		ctx := context.Background()
		client, err := database.Connect(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer client.Close()

		schema, err := client.LoadSchema(ctx)
		if err != nil {
			return fmt.Errorf("failed to load schema: %w", err)
		}

		graph := depgraph.Build(schema)
		order := graph.TopologicalSort()

		color.Cyan("Insertion order (%d tables):", len(order))
		for i, table := range order {
			fmt.Printf("  %2d. %s\n", i+1, table)
		}

		if cycles := graph.DetectCircularDependencies(); len(cycles) > 0 {
			fmt.Println()
			color.Yellow("Circular dependencies:")
			for _, cycle := range cycles {
				fmt.Printf("  %s\n", strings.Join(cycle, " → "))
			}
		}

		if selfRefs := depgraph.SelfReferencingTables(schema); len(selfRefs) > 0 {
			fmt.Println()
			color.Yellow("Self-referencing tables: %s", strings.Join(selfRefs, ", "))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
