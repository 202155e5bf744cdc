// Command orchepy runs the phase-based workflow orchestrator server and its
// migration tooling, following the serve/migrate cobra-subcommand shape of
// cloudshipai-station's cmd/main.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "orchepy",
		Short: "Phase-based workflow orchestrator",
	}
	root.AddCommand(serveCmd, migrateCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the orchepy version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("orchepy " + version)
		return nil
	},
}
