// Command rvc manages automatic version history of relational records.
package main

import (
	"os"

	"github.com/kilupskalvis/rvc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
