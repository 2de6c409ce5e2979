// Package watcher polls the session file for changes made by another
// process, such as the CLI editing a workspace that is also being served.
package watcher

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DarlingtonDeveloper/StageGate/hashid"
)

// EventSessionChanged is emitted when the file content differs from the
// last known content.
const EventSessionChanged = "session_changed"

// DefaultInterval is the poll period.
const DefaultInterval = 500 * time.Millisecond

// Event is one observed change.
type Event struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Signature string `json:"signature"`
	// Content is the file content that triggered the event.
	Content []byte `json:"-"`
}

// Watcher polls a single file.
type Watcher struct {
	path     string
	interval time.Duration
	events   chan Event
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex

	lastSig string
}

// New creates a watcher for path. A non-positive interval uses
// DefaultInterval.
func New(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		path:     path,
		interval: interval,
		events:   make(chan Event, 16),
		stopCh:   make(chan struct{}),
	}
}

// Events returns the channel of observed changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Done is closed by Stop.
func (w *Watcher) Done() <-chan struct{} {
	return w.stopCh
}

// Start records the current content as known and begins polling.
func (w *Watcher) Start() error {
	data, err := os.ReadFile(w.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("watch %s: %w", w.path, err)
	default:
		w.Mark(data)
	}

	go w.poll()
	log.Printf("[watcher] watching %s", w.path)
	return nil
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Mark records data as the known content, so a write made by this process
// is not reported back as a change.
func (w *Watcher) Mark(data []byte) {
	w.mu.Lock()
	w.lastSig = w.signature(data)
	w.mu.Unlock()
}

func (w *Watcher) signature(data []byte) string {
	return hashid.Signature(filepath.Base(w.path), data)
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *Watcher) checkForChanges() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return
	}
	sig := w.signature(data)

	w.mu.Lock()
	changed := sig != w.lastSig
	if changed {
		w.lastSig = sig
	}
	w.mu.Unlock()

	if changed {
		w.emitEvent(Event{Type: EventSessionChanged, Path: w.path, Signature: sig, Content: data})
	}
}

func (w *Watcher) emitEvent(event Event) {
	select {
	case w.events <- event:
	default:
		log.Printf("[watcher] event channel full, dropping %s", event.Type)
	}
}
