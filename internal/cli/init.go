package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/rvc/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new RVC project",
	Long: `Initialize a new RVC project in the current directory.
This writes a starter rvc.toml, creates the SQLite database and provisions
the tables of the example record type.`,
	Run: runInit,
}

var initYAML bool

func init() {
	initCmd.Flags().BoolVar(&initYAML, "yaml", false, "Write rvc.yaml instead of rvc.toml")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(cwd, initYAML)
	if err != nil {
		exitError("%v", err)
	}
	configPath = cfg.Path()

	c := initRepoContext(true)
	defer c.Close()

	green := color.New(color.FgGreen)
	green.Printf("Initialized RVC project in %s\n", cwd)
	fmt.Printf("Config:   %s\n", cfg.Path())
	fmt.Printf("Database: %s\n", cfg.DatabasePath())
}
