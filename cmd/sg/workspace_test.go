package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DarlingtonDeveloper/StageGate/config"
	"github.com/DarlingtonDeveloper/StageGate/gate"
	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

// newTestWorkspace initializes a workspace in a temp dir and points --dir
// at it for the duration of the test.
func newTestWorkspace(t *testing.T) *workspace {
	t.Helper()
	root := t.TempDir()
	dir, err := initWorkspace(root, false)
	if err != nil {
		t.Fatalf("initWorkspace: %v", err)
	}
	old := dirFlag
	dirFlag = root
	t.Cleanup(func() { dirFlag = old })

	ws, err := openWorkspaceAt(dir)
	if err != nil {
		t.Fatalf("openWorkspaceAt: %v", err)
	}
	return ws
}

func TestInitWorkspaceLayout(t *testing.T) {
	root := t.TempDir()
	dir, err := initWorkspace(root, false)
	if err != nil {
		t.Fatalf("initWorkspace: %v", err)
	}

	for _, name := range []string{config.FileName, "session.json", runtimeFile, auditFile, "checkpoints"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	if _, err := initWorkspace(root, false); err == nil {
		t.Error("expected error on second init without --force")
	}
	if _, err := initWorkspace(root, true); err != nil {
		t.Errorf("init --force: %v", err)
	}

	entries, _ := readAuditLog(dir)
	if len(entries) != 2 || entries[0].Action != AuditWorkspaceInitialized {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestSessionPersistsAcrossLoads(t *testing.T) {
	ws := newTestWorkspace(t)

	m, err := ws.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := m.Submit(stage.Start, gate.Answers{
		stage.KeyProcessName:  "Invoice intake",
		stage.KeyProcessOwner: "Finance",
	})
	if err != nil || !res.Passed {
		t.Fatalf("Submit start: %+v, %v", res, err)
	}
	if err := m.Record(stage.Gate1, gate.Answers{"g1_rule_based": "Yes"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ws.save(m); err != nil {
		t.Fatalf("save: %v", err)
	}

	again, err := ws.load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Store().SessionID() != m.Store().SessionID() {
		t.Errorf("session id %s, want %s", again.Store().SessionID(), m.Store().SessionID())
	}
	if !again.Store().StartedAt().Equal(m.Store().StartedAt()) {
		t.Error("started_at not preserved")
	}
	p := again.Progress()
	if !p.Stages[0].Complete || !p.Stages[1].Visible {
		t.Errorf("progress after reload = %+v", p.Stages[:2])
	}
	answers, _ := again.Answers(stage.Gate1)
	if answers["g1_rule_based"] != "Yes" {
		t.Errorf("g1_rule_based = %v", answers["g1_rule_based"])
	}
	if again.Store().Ephemeral().UploaderToken != m.Store().Ephemeral().UploaderToken {
		t.Error("uploader token not preserved")
	}
}

func TestSessionFileOnlyHoldsPersistableKeys(t *testing.T) {
	ws := newTestWorkspace(t)
	if err := os.WriteFile(ws.sessionPath(), []byte(`{"process_name":"X","uploader":"junk","mystery":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := ws.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	keys := m.Store().Keys()
	if len(keys) != 1 || keys[0] != stage.KeyProcessName {
		t.Errorf("keys = %v, want [process_name]", keys)
	}
}

func TestLoadDamagedSession(t *testing.T) {
	ws := newTestWorkspace(t)
	if err := os.WriteFile(ws.sessionPath(), []byte(`{"process_name":`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.load(); err == nil {
		t.Fatal("expected error for damaged session file")
	}
}

func TestLoadWithoutSessionFile(t *testing.T) {
	ws := newTestWorkspace(t)
	os.Remove(ws.sessionPath())
	os.Remove(filepath.Join(ws.Dir, runtimeFile))

	m, err := ws.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Store().Len() != 0 {
		t.Errorf("expected empty store, got %d keys", m.Store().Len())
	}
	var flag bool
	m.Store().View(func(tx *state.Tx) { flag = tx.Bool(stage.FlagPhase0) })
	if flag {
		t.Error("fresh session should not be complete")
	}
}

func TestFindStageDirWithDirFlag(t *testing.T) {
	ws := newTestWorkspace(t)

	got, err := findStageDir()
	if err != nil {
		t.Fatalf("findStageDir: %v", err)
	}
	want, _ := filepath.Abs(ws.Dir)
	if got != want {
		t.Errorf("findStageDir = %s, want %s", got, want)
	}

	dirFlag = t.TempDir()
	if _, err := findStageDir(); err == nil {
		t.Error("expected error for directory without workspace")
	}
}

func TestFindStageDirWalksUp(t *testing.T) {
	root := t.TempDir()
	if _, err := initWorkspace(root, false); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	if err := os.Chdir(nested); err != nil {
		t.Fatal(err)
	}
	old := dirFlag
	dirFlag = ""
	defer func() { dirFlag = old }()

	got, err := findStageDir()
	if err != nil {
		t.Fatalf("findStageDir: %v", err)
	}
	want, _ := filepath.EvalSymlinks(filepath.Join(root, WorkspaceDirName))
	if got != want {
		t.Errorf("findStageDir = %s, want %s", got, want)
	}
}
