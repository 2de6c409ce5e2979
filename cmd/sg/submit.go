package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/StageGate/gate"
)

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().Bool("json", false, "Output the result as JSON")
}

var submitCmd = &cobra.Command{
	Use:   "submit <stage> [key=value...]",
	Short: "Record optional answers and evaluate a stage",
	Long: `Evaluates the stage's completion criteria. A stage that passes is marked
complete and the next stage opens. Unmet criteria are listed and the stage
stays as it was. Rejecting go-live at Gate 5 reopens the development loop.

Examples:
  sg submit g1
  sg submit g5 g5_user_acceptance=No`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	s, err := lookupStage(args[0])
	if err != nil {
		return err
	}
	answers, err := parseAssignments(s.ID, args[1:])
	if err != nil {
		return err
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	m, err := ws.load()
	if err != nil {
		return err
	}
	res, err := m.Submit(s.ID, answers)
	if err != nil {
		return err
	}
	if err := ws.save(m); err != nil {
		return err
	}
	auditResult(ws, res)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	renderResult(cmd.OutOrStdout(), s, res)
	return nil
}

func auditResult(ws *workspace, res gate.Result) {
	details := map[string]interface{}{"stage": string(res.Stage)}
	if res.Score != nil {
		details["score"] = res.Score.Normalized
	}
	if res.Passed {
		ws.audit(AuditStagePassed, details)
		return
	}
	unmet := res.Unmet()
	names := make([]string, len(unmet))
	for i, c := range unmet {
		names[i] = c.Name
		if c.Key != "" {
			names[i] = string(c.Key)
		}
	}
	details["unmet"] = strings.Join(names, ",")
	ws.audit(AuditStageFailed, details)

	if len(res.Reset) > 0 {
		keys := make([]string, len(res.Reset))
		for i, k := range res.Reset {
			keys[i] = string(k)
		}
		ws.audit(AuditStagesReset, map[string]interface{}{
			"stage": string(res.Stage),
			"reset": strings.Join(keys, ","),
		})
	}
}
