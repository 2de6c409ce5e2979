package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// AuditEntry is one line of .stagegate/audit.jsonl.
type AuditEntry struct {
	Timestamp string                 `json:"timestamp"`
	Action    string                 `json:"action"`
	Actor     string                 `json:"actor"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Audit actions.
const (
	AuditAnswersRecorded      = "answers_recorded"
	AuditStagePassed          = "stage_passed"
	AuditStageFailed          = "stage_failed"
	AuditStagesReset          = "stages_reset"
	AuditSnapshotExported     = "snapshot_exported"
	AuditSnapshotImported     = "snapshot_imported"
	AuditSnapshotSkipped      = "snapshot_skipped"
	AuditUploadCleared        = "upload_cleared"
	AuditCheckpointCreated    = "checkpoint_created"
	AuditCheckpointRestored   = "checkpoint_restored"
	AuditWorkspaceInitialized = "workspace_initialized"
)

const auditFile = "audit.jsonl"

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditFilterCmd)

	auditListCmd.Flags().IntP("last", "n", 20, "Number of entries to show")
	auditListCmd.Flags().Bool("json", false, "Output raw JSON lines")

	auditFilterCmd.Flags().StringP("action", "a", "", "Filter by action type")
	auditFilterCmd.Flags().String("by", "", "Filter by actor")
	auditFilterCmd.Flags().String("since", "", "Show entries since (RFC3339 or duration like 1h, 24h)")
	auditFilterCmd.Flags().IntP("last", "n", 50, "Max entries to show")
	auditFilterCmd.Flags().Bool("json", false, "Output raw JSON lines")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit trail",
	Long: `View and query the StageGate audit trail.

Every state change made from the CLI is recorded:
  answers_recorded, stage_passed, stage_failed, stages_reset,
  snapshot_exported, snapshot_imported, snapshot_skipped, upload_cleared,
  checkpoint_created, checkpoint_restored, workspace_initialized

Examples:
  sg audit                           # Show last 20 entries
  sg audit list -n 50                # Show last 50 entries
  sg audit filter -a stage_failed    # Show blocked gates
  sg audit filter --since 24h        # Last day's activity`,
	RunE: runAuditList,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit entries",
	RunE:  runAuditList,
}

var auditFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter audit entries",
	RunE:  runAuditFilter,
}

func runAuditList(cmd *cobra.Command, args []string) error {
	dir, err := findStageDir()
	if err != nil {
		return err
	}

	n := 20
	if f := cmd.Flags().Lookup("last"); f != nil && f.Changed {
		n, _ = cmd.Flags().GetInt("last")
		if n <= 0 {
			n = 20
		}
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	entries, err := readAuditLog(dir)
	if err != nil {
		return err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return printAuditEntries(cmd.OutOrStdout(), entries, jsonOutput)
}

// auditFilter selects audit entries.
type auditFilter struct {
	Action string
	Actor  string
	Since  time.Time
	Last   int
}

func (f auditFilter) apply(entries []AuditEntry) []AuditEntry {
	var out []AuditEntry
	for _, e := range entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Actor != "" && !strings.Contains(e.Actor, f.Actor) {
			continue
		}
		if !f.Since.IsZero() {
			if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil && t.Before(f.Since) {
				continue
			}
		}
		out = append(out, e)
	}
	if f.Last > 0 && len(out) > f.Last {
		out = out[len(out)-f.Last:]
	}
	return out
}

// parseSince accepts a duration back from now or an RFC3339 timestamp.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since value: %s (use duration like 1h or RFC3339)", s)
}

func runAuditFilter(cmd *cobra.Command, args []string) error {
	dir, err := findStageDir()
	if err != nil {
		return err
	}

	f := auditFilter{}
	f.Action, _ = cmd.Flags().GetString("action")
	f.Actor, _ = cmd.Flags().GetString("by")
	f.Last, _ = cmd.Flags().GetInt("last")
	if f.Last <= 0 {
		f.Last = 20
	}
	sinceStr, _ := cmd.Flags().GetString("since")
	if f.Since, err = parseSince(sinceStr, time.Now().UTC()); err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	entries, err := readAuditLog(dir)
	if err != nil {
		return err
	}
	return printAuditEntries(cmd.OutOrStdout(), f.apply(entries), jsonOutput)
}

func printAuditEntries(w io.Writer, entries []AuditEntry, jsonOutput bool) error {
	if len(entries) == 0 {
		if !jsonOutput {
			fmt.Fprintln(w, "No audit entries found.")
		}
		return nil
	}

	if jsonOutput {
		for _, e := range entries {
			data, _ := json.Marshal(e)
			fmt.Fprintln(w, string(data))
		}
		return nil
	}

	for _, e := range entries {
		ts := e.Timestamp
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			ts = t.Format("2006-01-02 15:04:05")
		}

		detailStr := ""
		if len(e.Details) > 0 {
			keys := make([]string, 0, len(e.Details))
			for k := range e.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
			}
			detailStr = " " + strings.Join(parts, " ")
		}

		fmt.Fprintf(w, "[%s] %-22s actor=%-8s%s\n", ts, e.Action, e.Actor, detailStr)
	}
	return nil
}

// audit appends an entry unless the workspace disabled the trail. Failures
// are reported as warnings and never fail the command.
func (ws *workspace) audit(action string, details map[string]interface{}) {
	if !ws.Config.Audit.Enabled {
		return
	}
	writeAuditLog(ws.Dir, action, actorFlag, details)
}

func writeAuditLog(dir, action, actor string, details map[string]interface{}) {
	entry := AuditEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Action:    action,
		Actor:     actor,
		Details:   details,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ failed to marshal audit entry: %v\n", err)
		return
	}

	f, err := os.OpenFile(filepath.Join(dir, auditFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ failed to open audit log: %v\n", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ failed to write audit entry: %v\n", err)
	}
}

func readAuditLog(dir string) ([]AuditEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, auditFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	var entries []AuditEntry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
