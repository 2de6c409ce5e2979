package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/StageGate/gate"
	"github.com/DarlingtonDeveloper/StageGate/stage"
)

func init() {
	rootCmd.AddCommand(questionsCmd)
}

var questionsCmd = &cobra.Command{
	Use:   "questions <stage>",
	Short: "List the questions of a stage with their current answers",
	Long: `Stage keys: start, g1, p1, g2, p2, g3, p3, g4, p4, g5, p5, end.

Example:
  sg questions g2`,
	Args: cobra.ExactArgs(1),
	RunE: runQuestions,
}

func lookupStage(arg string) (stage.Stage, error) {
	s, ok := stage.Lookup(stage.ID(arg))
	if !ok {
		return stage.Stage{}, fmt.Errorf("%w: %s", gate.ErrUnknownStage, arg)
	}
	return s, nil
}

func runQuestions(cmd *cobra.Command, args []string) error {
	s, err := lookupStage(args[0])
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
	answers, err := m.Answers(s.ID)
	if err != nil {
		return err
	}
	renderQuestions(cmd.OutOrStdout(), s, stage.Questions(s.ID), answers)
	if p := m.Progress(); !p.Stages[s.Ordinal].Visible {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s is locked until its predecessor is complete\n", s.Label)
	}
	return nil
}
