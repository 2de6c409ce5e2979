package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/StageGate/snapshot"
)

const checkpointPrefix = "cp-"

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Create a session checkpoint",
	Long: `Writes the persistable session state to
.stagegate/checkpoints/cp-<timestamp>.json.gz.

Subcommands:
  sg checkpoint              # Create a checkpoint
  sg checkpoint list         # List checkpoints, newest first
  sg checkpoint restore <id> # Import a checkpoint into the session`,
	RunE: runCheckpointCreate,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints",
	RunE:  runCheckpointList,
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id>",
	Short: "Import a checkpoint into the session",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointRestore,
}

// Checkpoint describes one stored checkpoint file.
type Checkpoint struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

func checkpointID(now time.Time) string {
	return checkpointPrefix + now.UTC().Format("20060102-150405")
}

func runCheckpointCreate(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	m, err := ws.load()
	if err != nil {
		return err
	}
	cp, err := createCheckpoint(ws, snapshot.Export(m.Store()), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint %s written to %s\n", cp.ID, cp.Path)
	return nil
}

func createCheckpoint(ws *workspace, doc snapshot.Document, now time.Time) (*Checkpoint, error) {
	data, err := snapshot.Encode(doc, snapshot.FormatGzip)
	if err != nil {
		return nil, err
	}
	dir := ws.checkpointDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	id := checkpointID(now)
	path := filepath.Join(dir, id+snapshot.FormatGzip.Ext())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint: %w", err)
	}
	ws.audit(AuditCheckpointCreated, map[string]interface{}{
		"checkpoint_id": id,
		"keys":          len(doc),
	})
	return &Checkpoint{ID: id, Path: path, CreatedAt: now.UTC(), Size: int64(len(data))}, nil
}

// listCheckpoints returns the stored checkpoints, newest first.
func listCheckpoints(ws *workspace) ([]Checkpoint, error) {
	entries, err := os.ReadDir(ws.checkpointDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}

	var out []Checkpoint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, checkpointPrefix) {
			continue
		}
		id := strings.TrimSuffix(name, snapshot.FormatGzip.Ext())
		if id == name {
			continue
		}
		cp := Checkpoint{ID: id, Path: filepath.Join(ws.checkpointDir(), name)}
		if t, err := time.Parse("20060102-150405", strings.TrimPrefix(id, checkpointPrefix)); err == nil {
			cp.CreatedAt = t
		}
		if info, err := e.Info(); err == nil {
			cp.Size = info.Size()
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	cps, err := listCheckpoints(ws)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints found.")
		return nil
	}
	for _, cp := range cps {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d bytes\n", cp.ID, cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Size)
	}
	return nil
}

func runCheckpointRestore(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	m, err := ws.load()
	if err != nil {
		return err
	}

	id := strings.TrimSuffix(args[0], snapshot.FormatGzip.Ext())
	path := filepath.Join(ws.checkpointDir(), id+snapshot.FormatGzip.Ext())
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("checkpoint %s not found", id)
	}

	// A checkpoint is restored on request even if it was the last import.
	snapshot.ClearUpload(m.Store())
	rep, err := importFile(ws, m, path, AuditCheckpointRestored)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s (%d keys)\n", id, rep.Applied)
	return nil
}
