// Package state holds the mutable session state of one stage-gate run.
//
// A Store is owned by exactly one session. Every read goes through a View
// and every write through an Update transaction, so a stage action either
// commits all of its derived changes or none of them.
package state

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Key names one persisted value in the store.
type Key string

// Ephemeral holds display and upload bookkeeping that lives only as long as
// the session. None of it is ever written to a snapshot.
type Ephemeral struct {
	// ShowChart controls whether the cost/benefit chart is rendered.
	ShowChart bool `json:"show_chart"`
	// LoadedSignature is the content signature of the last applied import.
	LoadedSignature string `json:"loaded_signature,omitempty"`
	// UploaderToken identifies the current upload widget instance.
	UploaderToken string `json:"uploader_token"`
}

// Store is the process-wide state container for one session.
type Store struct {
	mu sync.RWMutex

	sessionID string
	startedAt time.Time
	values    map[Key]any
	ephemeral Ephemeral
}

// NewStore creates an empty store with a fresh session id.
func NewStore() *Store {
	return &Store{
		sessionID: uuid.New().String()[:8],
		startedAt: time.Now().UTC(),
		values:    make(map[Key]any),
		ephemeral: Ephemeral{UploaderToken: NewUploaderToken()},
	}
}

// Resume creates an empty store that continues an earlier session.
func Resume(sessionID string, startedAt time.Time) *Store {
	s := NewStore()
	if sessionID != "" {
		s.sessionID = sessionID
	}
	if !startedAt.IsZero() {
		s.startedAt = startedAt
	}
	return s
}

// NewUploaderToken returns a fresh upload-widget identity.
func NewUploaderToken() string {
	return "uploader-" + uuid.New().String()[:8]
}

// SessionID returns the short id assigned at creation.
func (s *Store) SessionID() string {
	return s.sessionID
}

// StartedAt returns when the session was created.
func (s *Store) StartedAt() time.Time {
	return s.startedAt
}

// View runs fn with a read-only transaction.
func (s *Store) View(fn func(tx *Tx)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&Tx{store: s, readOnly: true})
}

// Update runs fn inside a write transaction. Changes made through tx become
// visible only if fn returns nil; otherwise the store is left untouched.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		store:     s,
		pending:   make(map[Key]any),
		deleted:   make(map[Key]bool),
		ephemeral: s.ephemeral,
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k := range tx.deleted {
		delete(s.values, k)
	}
	for k, v := range tx.pending {
		s.values[k] = v
	}
	s.ephemeral = tx.ephemeral
	return nil
}

// Ephemeral returns a copy of the session-only fields.
func (s *Store) Ephemeral() Ephemeral {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ephemeral
}

// SetEphemeral replaces the session-only fields, used when a CLI session is
// resumed from its runtime file.
func (s *Store) SetEphemeral(e Ephemeral) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.UploaderToken == "" {
		e.UploaderToken = NewUploaderToken()
	}
	s.ephemeral = e
}

// Keys returns all keys currently holding a value, sorted.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of stored values.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Tx is a transactional accessor over a Store. Reads observe the
// transaction's own pending writes.
type Tx struct {
	store     *Store
	readOnly  bool
	pending   map[Key]any
	deleted   map[Key]bool
	ephemeral Ephemeral
}

// Get returns the raw value stored under k.
func (tx *Tx) Get(k Key) (any, bool) {
	if !tx.readOnly {
		if v, ok := tx.pending[k]; ok {
			return v, true
		}
		if tx.deleted[k] {
			return nil, false
		}
	}
	v, ok := tx.store.values[k]
	return v, ok
}

// Has reports whether k holds a value.
func (tx *Tx) Has(k Key) bool {
	_, ok := tx.Get(k)
	return ok
}

// Bool returns the value under k if it is a boolean, false otherwise.
func (tx *Tx) Bool(k Key) bool {
	v, _ := tx.Get(k)
	b, _ := v.(bool)
	return b
}

// String returns the value under k if it is a string, "" otherwise.
func (tx *Tx) String(k Key) string {
	v, _ := tx.Get(k)
	s, _ := v.(string)
	return s
}

// Number returns the value under k as a float64. The second result is false
// when the key is missing or holds a non-numeric value.
func (tx *Tx) Number(k Key) (float64, bool) {
	v, ok := tx.Get(k)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// Strings returns the value under k as a string list, accepting both
// []string and a decoded JSON array.
func (tx *Tx) Strings(k Key) []string {
	v, _ := tx.Get(k)
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Set stores v under k. It panics on a read-only transaction.
func (tx *Tx) Set(k Key, v any) {
	tx.mustWrite()
	delete(tx.deleted, k)
	tx.pending[k] = v
}

// Delete removes k.
func (tx *Tx) Delete(k Key) {
	tx.mustWrite()
	delete(tx.pending, k)
	tx.deleted[k] = true
}

// Ephemeral returns the session-only fields as seen by this transaction.
func (tx *Tx) Ephemeral() Ephemeral {
	if tx.readOnly {
		return tx.store.ephemeral
	}
	return tx.ephemeral
}

// SetEphemeral replaces the session-only fields on commit.
func (tx *Tx) SetEphemeral(e Ephemeral) {
	tx.mustWrite()
	tx.ephemeral = e
}

// Each calls fn for every key visible to the transaction, in key order.
func (tx *Tx) Each(fn func(k Key, v any)) {
	seen := make(map[Key]bool)
	var keys []Key
	if !tx.readOnly {
		for k := range tx.pending {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range tx.store.values {
		if seen[k] || (!tx.readOnly && tx.deleted[k]) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		v, _ := tx.Get(k)
		fn(k, v)
	}
}

func (tx *Tx) mustWrite() {
	if tx.readOnly {
		panic("state: write on read-only transaction")
	}
}

// ToFloat converts the numeric types that reach the store (Go literals,
// decoded JSON numbers) to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
