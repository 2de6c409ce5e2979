package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/StageGate/snapshot"
	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().Bool("gzip", false, "Write a .json.gz snapshot (default from export.compress)")
	exportCmd.Flags().StringP("output", "o", "", "Output path (default: generated name in export.dir)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the session as a portable snapshot",
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	m, err := ws.load()
	if err != nil {
		return err
	}

	format := snapshot.FormatJSON
	compress := ws.Config.Export.Compress
	if cmd.Flags().Changed("gzip") {
		compress, _ = cmd.Flags().GetBool("gzip")
	}
	if compress {
		format = snapshot.FormatGzip
	}

	path, _ := cmd.Flags().GetString("output")
	written, err := exportTo(ws, m.Store(), format, path, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", written)
	return nil
}

// exportTo writes the session snapshot. An empty path picks the generated
// file name inside the configured export directory.
func exportTo(ws *workspace, store *state.Store, format snapshot.Format, path string, now time.Time) (string, error) {
	doc := snapshot.Export(store)
	data, err := snapshot.Encode(doc, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		var name string
		store.View(func(tx *state.Tx) {
			name = tx.String(stage.KeyProcessName)
		})
		path = filepath.Join(ws.Config.Export.Dir, snapshot.FileName(name, now, format))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	ws.audit(AuditSnapshotExported, map[string]interface{}{
		"file":   filepath.Base(path),
		"format": string(format),
		"keys":   len(doc),
	})
	return path, nil
}
