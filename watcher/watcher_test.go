package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testInterval = 20 * time.Millisecond

func writeSession(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectQuiet(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(10 * testInterval):
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	w := New("session.json", 0)
	if w.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", w.interval, DefaultInterval)
	}
}

func TestDetectsExternalChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	writeSession(t, path, `{"process_name":"A"}`)

	w := New(path, testInterval)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	expectQuiet(t, w)

	writeSession(t, path, `{"process_name":"B"}`)
	ev := waitEvent(t, w)
	if ev.Type != EventSessionChanged || string(ev.Content) != `{"process_name":"B"}` {
		t.Errorf("event = %+v", ev)
	}
	expectQuiet(t, w)
}

func TestMarkSuppressesOwnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	writeSession(t, path, `{}`)

	w := New(path, testInterval)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	own := `{"process_name":"mine"}`
	w.Mark([]byte(own))
	writeSession(t, path, own)
	expectQuiet(t, w)
}

func TestMissingFileThenCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	w := New(path, testInterval)
	if err := w.Start(); err != nil {
		t.Fatalf("Start on missing file: %v", err)
	}
	defer w.Stop()

	writeSession(t, path, `{"process_name":"new"}`)
	if ev := waitEvent(t, w); ev.Path != path {
		t.Errorf("path = %s", ev.Path)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "x.json"), testInterval)
	w.Start()
	w.Stop()
	w.Stop()
}

func TestDoneClosedByStop(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "x.json"), testInterval)
	w.Stop()
	select {
	case <-w.Done():
	default:
		t.Error("Done not closed after Stop")
	}
}
