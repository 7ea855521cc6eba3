package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/rvc/internal/models"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <type> <id>",
	Short: "Show the version history of a record",
	Long:  `Display every snapshot of a record, oldest first.`,
	Args:  cobra.ExactArgs(2),
	Run:   runHistory,
}

var (
	historyJSON  bool
	historyLimit int
)

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print snapshots as JSON")
	historyCmd.Flags().IntVarP(&historyLimit, "n", "n", 0, "Only show the latest n versions")
}

func runHistory(cmd *cobra.Command, args []string) {
	c := initRepoContext(false)
	defer c.Close()

	id, err := parseID(args[1])
	if err != nil {
		exitError("%v", err)
	}
	sel, err := c.Repo.Selector(args[0])
	if err != nil {
		exitError("%v", err)
	}

	snaps, err := c.Repo.History(context.Background(), args[0], id)
	if err != nil {
		exitError("failed to get history: %v", err)
	}
	if historyLimit > 0 && len(snaps) > historyLimit {
		snaps = snaps[len(snaps)-historyLimit:]
	}

	if historyJSON {
		printJSON(snaps)
		return
	}

	if len(snaps) == 0 {
		fmt.Printf("No versions of %s/%d\n", args[0], id)
		return
	}
	for _, snap := range snaps {
		printSnapshot(snap, sel.Fields())
		fmt.Println()
	}
}

// printSnapshot prints one snapshot with its fields in selector order
func printSnapshot(snap *models.Snapshot, fields []string) {
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	yellow.Printf("version %d", snap.Version)
	fmt.Printf("  %s/%d\n", snap.RecordType, snap.RefID)
	fmt.Printf("Date:   %s\n", snap.CreatedAt.Local().Format("Mon Jan 2 15:04:05.000 2006"))
	for _, name := range orderedNames(fields, snap.Fields) {
		cyan.Printf("    %s", name)
		fmt.Printf(" = %s\n", snap.Fields.Get(name))
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitError("failed to encode JSON: %v", err)
	}
}
