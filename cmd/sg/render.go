package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/DarlingtonDeveloper/StageGate/gate"
	"github.com/DarlingtonDeveloper/StageGate/kpi"
	"github.com/DarlingtonDeveloper/StageGate/score"
	"github.com/DarlingtonDeveloper/StageGate/stage"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	currentMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623")).Bold(true)
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func renderProgress(w io.Writer, p gate.Progress) {
	fmt.Fprintln(w, titleStyle.Render("StageGate")+" "+mutedStyle.Render("session "+p.SessionID))
	fmt.Fprintln(w)
	for i, s := range p.Stages {
		var mark string
		switch {
		case s.Complete:
			mark = okStyle.Render("✓")
		case s.Visible:
			mark = currentMark.Render("▸")
		default:
			mark = mutedStyle.Render("·")
		}
		label := s.Label
		if s.Caption != "" {
			label += " " + mutedStyle.Render("("+s.Caption+")")
		}
		pointer := "  "
		if i == p.CurrentIndex {
			pointer = currentMark.Render("→ ")
		}
		fmt.Fprintf(w, "%s%s %-5s %s\n", pointer, mark, s.ID, label)
	}
	if p.AllComplete {
		fmt.Fprintln(w)
		fmt.Fprintln(w, okStyle.Render("✓ All stages complete"))
	}
}

func renderQuestions(w io.Writer, s stage.Stage, qs []stage.Question, answers gate.Answers) {
	head := s.Label
	if s.Caption != "" {
		head += ": " + s.Caption
	}
	fmt.Fprintln(w, titleStyle.Render(head))
	for _, q := range qs {
		domain := string(q.Type)
		if labels := q.Labels(); len(labels) > 0 && q.Type != stage.AnswerMulti {
			domain = strings.Join(labels, "/")
		}
		fmt.Fprintf(w, "  %-28s %s %s\n", q.Key, q.Prompt, mutedStyle.Render("["+domain+"]"))
		if q.Type == stage.AnswerMulti {
			for _, opt := range q.Options {
				fmt.Fprintf(w, "  %-28s   %s\n", "", mutedStyle.Render("- "+opt))
			}
		}
		if v, ok := answers[q.Key]; ok {
			fmt.Fprintf(w, "  %-28s   = %s\n", "", formatValue(v))
		}
	}
}

func formatValue(v any) string {
	switch vv := v.(type) {
	case []string:
		return strings.Join(vv, ", ")
	case []any:
		parts := make([]string, len(vv))
		for i, item := range vv {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ", ")
	case float64:
		return fmt.Sprintf("%g", vv)
	}
	return fmt.Sprint(v)
}

func renderResult(w io.Writer, s stage.Stage, res gate.Result) {
	for _, c := range res.Criteria {
		mark := okStyle.Render("✓")
		if !c.Met {
			mark = failStyle.Render("✗")
		}
		line := fmt.Sprintf("  %s %s", mark, c.Name)
		if c.Detail != "" {
			line += " " + mutedStyle.Render("("+c.Detail+")")
		}
		fmt.Fprintln(w, line)
	}
	if res.Score != nil {
		fmt.Fprintln(w, renderScoreCard(*res.Score))
	}
	fmt.Fprintln(w)
	switch {
	case res.Passed && res.Next != "":
		fmt.Fprintf(w, "%s %s complete, next: %s\n", okStyle.Render("✓"), s.Label, res.Next)
	case res.Passed:
		fmt.Fprintln(w, okStyle.Render("✓ Workflow complete"))
	default:
		blocked := "Stage incomplete"
		if s.Kind == stage.KindGate {
			blocked = "Gate blocked"
		}
		fmt.Fprintf(w, "%s %d unmet\n", failStyle.Render("✗ "+blocked+":"), len(res.Unmet()))
	}
	if len(res.Reset) > 0 {
		keys := make([]string, len(res.Reset))
		for i, k := range res.Reset {
			keys[i] = string(k)
		}
		fmt.Fprintf(w, "%s go-live rejected, reset %s\n", failStyle.Render("↺"), strings.Join(keys, ", "))
	}
}

func renderScoreCard(r score.Result) string {
	verdict := okStyle
	if !r.Passed() {
		verdict = failStyle
	}
	lines := []string{
		fmt.Sprintf("Ternary sum      %5.2f", r.BinarySum),
		fmt.Sprintf("Minutes / week   %5.0f  → %.2f", r.MinutesPerWeek, r.DurationScore),
		fmt.Sprintf("Benefits         %5d  → %.2f", r.BenefitCount, r.BenefitScore),
		fmt.Sprintf("Raw              %5.2f", r.Raw),
		verdict.Render(fmt.Sprintf("Score %.2f / 100  %s", r.Normalized, r.Verdict)),
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func renderFigures(f kpi.Figures) string {
	net := okStyle
	if f.NetBenefitWeek < 0 {
		net = failStyle
	}
	lines := []string{
		fmt.Sprintf("Runs / week        %10.0f", f.RunsPerWeek),
		fmt.Sprintf("Error cost / week  %10.2f", f.ErrorCostWeek),
		fmt.Sprintf("Saving / week      %10.2f", f.SavingCostWeek),
		net.Render(fmt.Sprintf("Net / week         %10.2f", f.NetBenefitWeek)),
		net.Render(fmt.Sprintf("Net / year         %10.2f", f.NetBenefitYear)),
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}
