package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().Bool("json", false, "Output the score as JSON")
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Preview the Gate 2 RPA score from the recorded answers",
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	m, err := ws.load()
	if err != nil {
		return err
	}
	res, err := m.ScorePreview()
	if err != nil {
		return fmt.Errorf("cannot score yet: %w (see 'sg questions g2')", err)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderScoreCard(res))
	return nil
}
