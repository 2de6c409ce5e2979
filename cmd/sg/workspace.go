package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DarlingtonDeveloper/StageGate/config"
	"github.com/DarlingtonDeveloper/StageGate/gate"
	"github.com/DarlingtonDeveloper/StageGate/snapshot"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

// WorkspaceDirName is the per-project state directory.
const WorkspaceDirName = ".stagegate"

const runtimeFile = "runtime.json"

// workspace is an opened .stagegate/ directory.
type workspace struct {
	Dir    string
	Config *config.Config

	// onSave, when set, receives every session file body written by save.
	onSave func(data []byte)

	mu sync.Mutex // serializes save
}

// Runtime is the session bookkeeping kept next to the session file. It is
// never part of an exported snapshot.
type Runtime struct {
	SessionID string          `json:"session_id"`
	StartedAt time.Time       `json:"started_at"`
	Ephemeral state.Ephemeral `json:"ephemeral"`
}

// findStageDir locates the workspace: --dir if given, else the nearest
// .stagegate/ walking up from the working directory.
func findStageDir() (string, error) {
	if dirFlag != "" {
		dir := dirFlag
		if filepath.Base(dir) != WorkspaceDirName {
			dir = filepath.Join(dir, WorkspaceDirName)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return "", fmt.Errorf("%s not found - run 'sg init' first", dir)
		}
		return filepath.Abs(dir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	dir := cwd
	for {
		candidate := filepath.Join(dir, WorkspaceDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			resolved, err := filepath.EvalSymlinks(candidate)
			if err != nil {
				return "", fmt.Errorf("%s/ found but symlink broken: %w", WorkspaceDirName, err)
			}
			return resolved, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%s/ not found - run 'sg init' first", WorkspaceDirName)
}

func openWorkspace() (*workspace, error) {
	dir, err := findStageDir()
	if err != nil {
		return nil, err
	}
	return openWorkspaceAt(dir)
}

func openWorkspaceAt(dir string) (*workspace, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	return &workspace{Dir: dir, Config: cfg}, nil
}

func (ws *workspace) sessionPath() string {
	return ws.Config.SessionPath(ws.Dir)
}

func (ws *workspace) checkpointDir() string {
	return filepath.Join(ws.Dir, "checkpoints")
}

// load restores the session: persisted values from the session file and
// bookkeeping from runtime.json. Missing files yield an empty session.
func (ws *workspace) load() (*gate.Machine, error) {
	var rt Runtime
	if err := readJSON(filepath.Join(ws.Dir, runtimeFile), &rt); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read runtime: %w", err)
	}
	store := state.Resume(rt.SessionID, rt.StartedAt)
	store.SetEphemeral(rt.Ephemeral)

	data, err := os.ReadFile(ws.sessionPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return gate.New(store), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if err := replaceSession(store, data); err != nil {
		return nil, fmt.Errorf("session file is damaged: %w", err)
	}
	return gate.New(store), nil
}

// replaceSession makes the persisted values of store equal to the session
// file body in data. Session bookkeeping is left alone.
func replaceSession(store *state.Store, data []byte) error {
	doc, err := snapshot.Decode(data)
	if err != nil {
		return err
	}
	cleaned, _ := snapshot.Reconcile(doc)
	return store.Update(func(tx *state.Tx) error {
		var stale []state.Key
		tx.Each(func(k state.Key, _ any) {
			if _, ok := cleaned[string(k)]; !ok {
				stale = append(stale, k)
			}
		})
		for _, k := range stale {
			tx.Delete(k)
		}
		for k, v := range cleaned {
			tx.Set(state.Key(k), v)
		}
		return nil
	})
}

// save writes the session file and runtime.json.
func (ws *workspace) save(m *gate.Machine) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	store := m.Store()
	data, err := snapshot.Encode(snapshot.Export(store), snapshot.FormatJSON)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(ws.sessionPath(), data); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if ws.onSave != nil {
		ws.onSave(data)
	}
	rt := Runtime{
		SessionID: store.SessionID(),
		StartedAt: store.StartedAt(),
		Ephemeral: store.Ephemeral(),
	}
	return writeJSON(filepath.Join(ws.Dir, runtimeFile), rt)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
