package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/rvc/internal/core"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [type]",
	Short: "Verify records against their version history",
	Long: `Compare every record with its snapshots and report divergence: a
latest_version that does not match the number of snapshots, gaps in the
version sequence, and current values that differ from the latest snapshot.
Nothing is repaired. Exits with status 1 when anything is found.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runCheck,
}

var checkJSON bool

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print findings as JSON")
}

func runCheck(cmd *cobra.Command, args []string) {
	c := initRepoContext(false)

	var typeName string
	if len(args) == 1 {
		typeName = args[0]
	}

	findings, err := c.Repo.Check(context.Background(), typeName)
	if err != nil {
		c.Close()
		exitError("check failed: %v", err)
	}

	if findings == nil {
		findings = []core.Finding{}
	}

	switch {
	case checkJSON:
		printJSON(findings)
	case len(findings) == 0:
		color.New(color.FgGreen).Println("History is consistent")
	default:
		red := color.New(color.FgRed)
		for _, f := range findings {
			red.Printf("  %-15s", f.Kind)
			fmt.Printf("%s/%d: %s\n", f.RecordType, f.RecordID, f.Detail)
		}
		fmt.Printf("\n%d problems found\n", len(findings))
	}

	c.Close()
	if len(findings) > 0 {
		os.Exit(1)
	}
}
