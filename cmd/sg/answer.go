package main

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/StageGate/gate"
	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

func init() {
	rootCmd.AddCommand(answerCmd)
}

var answerCmd = &cobra.Command{
	Use:   "answer <stage> key=value...",
	Short: "Record answers for a stage without submitting it",
	Long: `Records one or more answers. Values are parsed by question type:
finite numbers as decimals, benefit lists comma-separated, everything else as text.
An empty value (key=) clears the answer.

Examples:
  sg answer start process_name="Invoice intake" process_owner=Finance
  sg answer g2 g2_duration_min=12.5 g2_benefits="24/7 operation,Standardisation"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAnswer,
}

// parseAssignments turns key=value arguments into typed answers for id.
// Keys outside the stage are passed through as text so the state machine
// can reject them.
func parseAssignments(id stage.ID, args []string) (gate.Answers, error) {
	out := make(gate.Answers, len(args))
	for _, arg := range args {
		k, raw, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q (want key=value)", arg)
		}
		key := state.Key(k)
		if raw == "" {
			out[key] = nil
			continue
		}
		q, known := stage.QuestionFor(id, key)
		if !known {
			out[key] = raw
			continue
		}
		switch q.Type {
		case stage.AnswerNumber:
			f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%s: %w: %q is not a number", k, gate.ErrInvalidAnswer, raw)
			}
			out[key] = f
		case stage.AnswerMulti:
			var items []string
			for _, item := range strings.Split(raw, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			out[key] = items
		case stage.AnswerYesNo, stage.AnswerTernary:
			out[key] = strings.TrimSpace(raw)
		default:
			out[key] = raw
		}
	}
	return out, nil
}

func answerKeys(a gate.Answers) []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

func runAnswer(cmd *cobra.Command, args []string) error {
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
	if err := m.Record(s.ID, answers); err != nil {
		return err
	}
	if err := ws.save(m); err != nil {
		return err
	}
	ws.audit(AuditAnswersRecorded, map[string]interface{}{
		"stage": string(s.ID),
		"keys":  strings.Join(answerKeys(answers), ","),
	})
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d answer(s) for %s\n", len(answers), s.Label)
	return nil
}
