package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <type> <id> [version]",
	Short: "Show a record or one of its versions",
	Long: `Show the current state of a record, or a single snapshot when a version
is given.`,
	Args: cobra.RangeArgs(2, 3),
	Run:  runShow,
}

var showJSON bool

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print as JSON")
}

func runShow(cmd *cobra.Command, args []string) {
	ctx := context.Background()
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

	if len(args) == 3 {
		version, err := strconv.Atoi(args[2])
		if err != nil || version < 1 {
			exitError("invalid version %q", args[2])
		}
		snap, err := c.Repo.Version(ctx, args[0], id, version)
		if err != nil {
			exitError("%v", err)
		}
		if showJSON {
			printJSON(snap)
			return
		}
		printSnapshot(snap, sel.Fields())
		return
	}

	rec, err := c.Repo.Get(ctx, args[0], id)
	if err != nil {
		exitError("%v", err)
	}
	if showJSON {
		printJSON(rec)
		return
	}

	count, err := c.Store.CountVersions(ctx, sel, id)
	if err != nil {
		exitError("%v", err)
	}

	rt := sel.RecordType()
	names := make([]string, 0, len(rt.Fields))
	for _, f := range rt.Fields {
		names = append(names, f.Name)
	}

	color.New(color.FgYellow).Printf("%s/%d", rec.Type, rec.ID)
	fmt.Printf("  latest_version %d, %d snapshots\n", rec.LatestVersion, count)
	fmt.Printf("Created: %s\n", rec.CreatedAt.Local().Format("Mon Jan 2 15:04:05 2006"))
	fmt.Printf("Updated: %s\n", rec.UpdatedAt.Local().Format("Mon Jan 2 15:04:05 2006"))
	for _, name := range orderedNames(names, rec.Attributes) {
		marker := " "
		if sel.Contains(name) {
			marker = "*"
		}
		color.New(color.FgCyan).Printf("  %s %s", marker, name)
		fmt.Printf(" = %s\n", rec.Attributes.Get(name))
	}
}
