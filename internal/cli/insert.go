package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var insertCmd = &cobra.Command{
	Use:   "insert <type> [field=value...]",
	Short: "Insert a record",
	Long: `Insert a record of the given type. The record is stored together with
its version 1 snapshot.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runInsert,
}

var updateCmd = &cobra.Command{
	Use:   "update <type> <id> field=value...",
	Short: "Update a record",
	Long: `Update fields of an existing record. A snapshot with the next version is
written unless the record type skips saves that leave every versioned field
unchanged.`,
	Args: cobra.MinimumNArgs(3),
	Run:  runUpdate,
}

func runInsert(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initRepoContext(true)
	defer c.Close()

	sel, err := c.Repo.Selector(args[0])
	if err != nil {
		exitError("%v", err)
	}
	attrs, err := parseAssignments(sel.RecordType(), args[1:])
	if err != nil {
		exitError("%v", err)
	}

	rec, err := c.Repo.Create(ctx, args[0], attrs)
	if err != nil {
		if rec.HasIdentity() {
			exitError("%s/%d was stored without a snapshot: %v", rec.Type, rec.ID, err)
		}
		exitError("%v", err)
	}

	color.New(color.FgGreen).Printf("Inserted %s/%d", rec.Type, rec.ID)
	fmt.Printf(" (version %d)\n", rec.LatestVersion)
}

func runUpdate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initRepoContext(true)
	defer c.Close()

	id, err := parseID(args[1])
	if err != nil {
		exitError("%v", err)
	}
	rec, err := c.Repo.Get(ctx, args[0], id)
	if err != nil {
		exitError("%v", err)
	}
	sel, err := c.Repo.Selector(rec.Type)
	if err != nil {
		exitError("%v", err)
	}
	changes, err := parseAssignments(sel.RecordType(), args[2:])
	if err != nil {
		exitError("%v", err)
	}

	before := rec.LatestVersion
	if err := c.Repo.Update(ctx, rec, changes); err != nil {
		exitError("%v", err)
	}

	if rec.LatestVersion == before {
		color.New(color.FgYellow).Printf("Updated %s/%d", rec.Type, rec.ID)
		fmt.Printf(" (no versioned field changed, still version %d)\n", rec.LatestVersion)
		return
	}
	color.New(color.FgGreen).Printf("Updated %s/%d", rec.Type, rec.ID)
	fmt.Printf(" (version %d)\n", rec.LatestVersion)
}
