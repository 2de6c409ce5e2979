package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(kpiCmd)
	kpiCmd.Flags().Bool("json", false, "Output the figures as JSON")
}

var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Show the cost/benefit figures of the post-implementation check",
	RunE:  runKPI,
}

func runKPI(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	m, err := ws.load()
	if err != nil {
		return err
	}
	f, ok := m.CostBenefit()
	if !ok {
		fmt.Fprintln(cmd.ErrOrStderr(), "⚠ KPIs are not measured yet (answer pic_measured=Yes)")
		return nil
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderFigures(f))
	return nil
}
