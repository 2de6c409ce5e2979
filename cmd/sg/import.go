package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/StageGate/gate"
	"github.com/DarlingtonDeveloper/StageGate/snapshot"
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("forget", false, "Forget the last imported file first so the same file applies again")
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a .json or .json.gz snapshot into the session",
	Long: `Merges a snapshot into the session. Unknown keys are dropped and keys
from older versions are renamed. Importing the same file twice is a no-op
unless --forget is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	m, err := ws.load()
	if err != nil {
		return err
	}
	if forget, _ := cmd.Flags().GetBool("forget"); forget {
		snapshot.ClearUpload(m.Store())
		if err := ws.save(m); err != nil {
			return err
		}
		ws.audit(AuditUploadCleared, nil)
	}

	rep, err := importFile(ws, m, args[0], AuditSnapshotImported)
	if err != nil {
		var de *snapshot.DecodeError
		if errors.As(err, &de) {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s\n", de.Message())
		}
		return err
	}
	if rep.Skipped {
		fmt.Fprintln(cmd.OutOrStdout(), "Already imported, nothing changed (use --forget to apply it again)")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d key(s) from %s\n", rep.Applied, args[0])
	if len(rep.Renamed) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  renamed: %s\n", strings.Join(rep.Renamed, ", "))
	}
	if len(rep.Stripped) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  ignored control keys: %s\n", strings.Join(rep.Stripped, ", "))
	}
	if len(rep.Dropped) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ dropped unknown keys: %s\n", strings.Join(rep.Dropped, ", "))
	}
	return nil
}

// importFile applies one snapshot file and persists the session. The
// session is saved even when the import is skipped so a preceding forget
// sticks.
func importFile(ws *workspace, m *gate.Machine, path, action string) (snapshot.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot.Report{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rep, err := snapshot.Import(m.Store(), filepath.Base(path), data)
	if err != nil {
		return rep, err
	}
	if err := ws.save(m); err != nil {
		return rep, err
	}
	if rep.Skipped {
		ws.audit(AuditSnapshotSkipped, map[string]interface{}{"file": filepath.Base(path)})
		return rep, nil
	}
	ws.audit(action, map[string]interface{}{
		"file":     filepath.Base(path),
		"applied":  rep.Applied,
		"dropped":  len(rep.Dropped),
		"stripped": len(rep.Stripped),
	})
	return rep, nil
}
