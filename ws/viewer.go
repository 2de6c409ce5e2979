package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 4096
	outboxSize   = 256
)

// command is a message sent by a viewer.
//
//	{"type":"subscribe","topics":["workflow"]}
//	{"type":"unsubscribe","topics":["snapshot"]}
//	{"type":"request_sync"}
type command struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
}

// Viewer is one connected progress viewer.
type Viewer struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	mu sync.RWMutex
	// topics is nil until the first subscribe; a nil set follows all topics.
	topics map[string]bool
}

func newViewer(h *Hub, conn *websocket.Conn) *Viewer {
	return &Viewer{hub: h, conn: conn, out: make(chan []byte, outboxSize)}
}

// offer queues data without blocking. It reports false when the outbox is
// full.
func (v *Viewer) offer(data []byte) bool {
	select {
	case v.out <- data:
		return true
	default:
		return false
	}
}

// follows reports whether the viewer receives events on topic. Sync
// messages always go through.
func (v *Viewer) follows(topic string) bool {
	if topic == TopicSync {
		return true
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.topics == nil || v.topics[topic]
}

func (v *Viewer) subscribe(topics []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.topics == nil {
		v.topics = make(map[string]bool)
	}
	for _, t := range topics {
		if !knownTopics[t] {
			log.Printf("[ws] ignoring unknown topic %q", t)
			continue
		}
		v.topics[t] = true
	}
}

func (v *Viewer) unsubscribe(topics []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range topics {
		delete(v.topics, t)
	}
}

func (v *Viewer) handle(msg []byte) {
	var cmd command
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return
	}
	switch cmd.Type {
	case "subscribe":
		v.subscribe(cmd.Topics)
	case "unsubscribe":
		v.unsubscribe(cmd.Topics)
	case "request_sync":
		select {
		case v.hub.resyncs <- v:
		case <-v.hub.done:
		}
	}
}

func (v *Viewer) readLoop() {
	defer func() {
		select {
		case v.hub.leaves <- v:
		case <-v.hub.done:
		}
		v.conn.Close()
	}()

	v.conn.SetReadLimit(maxFrameSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read: %v", err)
			}
			return
		}
		v.handle(msg)
	}
}

func (v *Viewer) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case msg, open := <-v.out:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
