// Package ws pushes workflow changes to connected progress viewers.
//
// Every broadcast carries a sequence number. A viewer that notices a gap,
// or that just connected, asks for a sync and receives the full progress
// view stamped with the sequence it reflects.
package ws

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Topics carried by the hub.
const (
	TopicSync     = "sync"
	TopicWorkflow = "workflow"
	TopicSnapshot = "snapshot"
)

// EventInitialState is the sync message type.
const EventInitialState = "initial_state"

var knownTopics = map[string]bool{TopicSync: true, TopicWorkflow: true, TopicSnapshot: true}

// Event is one message sent to viewers.
type Event struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Seq   uint64          `json:"seq"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Options configure a Hub.
type Options struct {
	// Token enables auth when non-empty: viewers must send it as a bearer
	// header or a token query parameter.
	Token string
	// AllowedOrigins restricts browser origins. Empty allows any origin.
	AllowedOrigins []string
}

// Hub owns the set of viewers. All viewer bookkeeping and the sequence
// counter are only touched by the Run goroutine.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	events  chan Event
	joins   chan *Viewer
	leaves  chan *Viewer
	resyncs chan *Viewer
	done    chan struct{}
	once    sync.Once

	viewers map[*Viewer]struct{}
	seq     uint64

	mu       sync.RWMutex
	count    int
	provider func() interface{}
}

// NewHub creates a hub. Call Run to start it.
func NewHub(opts Options) *Hub {
	h := &Hub{
		opts:    opts,
		events:  make(chan Event, 256),
		joins:   make(chan *Viewer),
		leaves:  make(chan *Viewer),
		resyncs: make(chan *Viewer),
		done:    make(chan struct{}),
		viewers: make(map[*Viewer]struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.originAllowed}
	return h
}

// Run is the hub loop. It returns after Close, disconnecting every viewer.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for v := range h.viewers {
				h.drop(v)
			}
			return
		case v := <-h.joins:
			h.viewers[v] = struct{}{}
			h.setCount()
			log.Printf("[ws] viewer connected (%d total)", len(h.viewers))
			h.sync(v)
		case v := <-h.leaves:
			if _, ok := h.viewers[v]; ok {
				h.drop(v)
				log.Printf("[ws] viewer disconnected (%d total)", len(h.viewers))
			}
		case v := <-h.resyncs:
			if _, ok := h.viewers[v]; ok {
				h.sync(v)
			}
		case ev := <-h.events:
			h.seq++
			ev.Seq = h.seq
			h.fanOut(ev)
		}
	}
}

func (h *Hub) fanOut(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[ws] marshal %s: %v", ev.Type, err)
		return
	}
	for v := range h.viewers {
		if !v.follows(ev.Topic) {
			continue
		}
		if !v.offer(data) {
			log.Printf("[ws] viewer too slow, disconnecting")
			h.drop(v)
		}
	}
}

func (h *Hub) drop(v *Viewer) {
	delete(h.viewers, v)
	close(v.out)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.viewers)
	h.mu.Unlock()
}

// sync sends the current progress view, stamped with the last sequence
// number, to one viewer.
func (h *Hub) sync(v *Viewer) {
	h.mu.RLock()
	provider := h.provider
	h.mu.RUnlock()
	if provider == nil {
		return
	}
	raw, err := json.Marshal(provider())
	if err != nil {
		log.Printf("[ws] marshal initial state: %v", err)
		return
	}
	data, _ := json.Marshal(Event{Topic: TopicSync, Type: EventInitialState, Seq: h.seq, Data: raw})
	v.offer(data)
}

// Close stops Run. It is safe to call more than once.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

// Broadcast queues an event for every viewer following its topic. Events
// sent after Close are discarded.
func (h *Hub) Broadcast(topic, eventType string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[ws] marshal %s: %v", eventType, err)
		return
	}
	select {
	case h.events <- Event{Topic: topic, Type: eventType, Data: raw}:
	case <-h.done:
	}
}

// Notify broadcasts on the workflow topic, or the snapshot topic for
// snapshot events. It satisfies api.EventNotifier.
func (h *Hub) Notify(eventType string, data interface{}) {
	topic := TopicWorkflow
	if strings.HasPrefix(eventType, "snapshot_") || eventType == "upload_cleared" {
		topic = TopicSnapshot
	}
	h.Broadcast(topic, eventType, data)
}

// SetStateProvider sets the source of the sync message.
func (h *Hub) SetStateProvider(fn func() interface{}) {
	h.mu.Lock()
	h.provider = fn
	h.mu.Unlock()
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// HandleWebSocket upgrades the request and attaches a viewer.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !authorized(r, h.opts.Token) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade: %v", err)
		return
	}

	v := newViewer(h, conn)
	select {
	case h.joins <- v:
	case <-h.done:
		conn.Close()
		return
	}
	go v.writeLoop()
	go v.readLoop()
}

func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && sameToken(bearer, token) {
		return true
	}
	return sameToken(r.URL.Query().Get("token"), token)
}

func sameToken(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *Hub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	log.Printf("[ws] rejected origin %s", origin)
	return false
}
