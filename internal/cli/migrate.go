package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or extend record and history tables",
	Long: `Bring the database up to date with the configuration. Missing record and
history tables are created and newly declared or newly versioned fields get
columns. Existing columns are never altered or dropped.`,
	Args: cobra.NoArgs,
	Run:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) {
	c := initRepoContext(true)
	defer c.Close()

	names, err := c.Store.ProvisionedTypes(context.Background())
	if err != nil {
		exitError("failed to list record types: %v", err)
	}

	green := color.New(color.FgGreen)
	for _, name := range names {
		sel, err := c.Repo.Selector(name)
		if err != nil {
			// Provisioned earlier but no longer configured
			color.New(color.FgYellow).Printf("  %s (not configured)\n", name)
			continue
		}
		rt := sel.RecordType()
		green.Printf("  %s", rt.Name)
		fmt.Printf("  %s -> %s  versioned: %v\n", rt.Table, rt.HistoryTable(), sel.Fields())
	}
}
