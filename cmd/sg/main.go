package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dirFlag   string
	actorFlag string
)

var rootCmd = &cobra.Command{
	Use:   "sg",
	Short: "StageGate - RPA stage-gate checklist",
	Long: `StageGate walks an RPA candidate process through a fixed stage-gate model:
a profile, five gates and five phases, and a post-implementation check.
A stage only opens once its predecessor is complete.

Progress lives in .stagegate/ and can be exported to a portable snapshot
(.json or .json.gz) and imported again later.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "Workspace directory (default: search upward for .stagegate/)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "cli", "Actor recorded in the audit trail")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
