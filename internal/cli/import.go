package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <type> <file.json|->",
	Short: "Bulk insert records from a JSON array",
	Long: `Bulk insert records of the given type from a JSON array of objects.
Every inserted record gets its version 1 snapshot. The whole batch commits
or fails together.`,
	Args: cobra.ExactArgs(2),
	Run:  runImport,
}

func runImport(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initRepoContext(true)
	defer c.Close()

	sel, err := c.Repo.Selector(args[0])
	if err != nil {
		exitError("%v", err)
	}

	var data []byte
	if args[1] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[1])
	}
	if err != nil {
		exitError("failed to read input: %v", err)
	}

	rows, err := decodeRows(sel.RecordType(), data)
	if err != nil {
		exitError("%v", err)
	}
	if len(rows) == 0 {
		fmt.Println("Nothing to import")
		return
	}

	recs, err := c.Repo.BulkInsert(ctx, args[0], rows)
	if err != nil {
		if len(recs) > 0 {
			exitError("%d %s records were stored without snapshots: %v", len(recs), args[0], err)
		}
		exitError("%v", err)
	}

	color.New(color.FgGreen).Printf("Imported %d %s records", len(recs), args[0])
	fmt.Printf(" (ids %d-%d)\n", recs[0].ID, recs[len(recs)-1].ID)
}
