// Package live streams store changes to WebSocket clients.
//
// A Hub observes a store through its change listener and fans each changed
// key out to every connected client as a JSON frame. Clients receive a full
// snapshot on connect and incremental updates after that; with client
// writes enabled they can also push values back, which land in the store
// through the normal reactive path and echo out to every other client.
package live

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/lattice-dev/lattice/pkg/cell"
	"github.com/lattice-dev/lattice/pkg/store"
)

// Frame is the wire format, in both directions. Type selects which of the
// remaining fields are set.
type Frame struct {
	// Type is one of FrameInit, FrameChange, or FrameSet.
	Type string `json:"type"`

	// Key names the store key for change and set frames.
	Key string `json:"key,omitempty"`

	// Value is the encoded cell value for change and set frames.
	Value json.RawMessage `json:"value,omitempty"`

	// Values holds the full store snapshot for init frames.
	Values map[string]json.RawMessage `json:"values,omitempty"`
}

// Frame types.
const (
	// FrameInit is the server's first frame: a full snapshot.
	FrameInit = "init"

	// FrameChange carries one changed key from server to client.
	FrameChange = "change"

	// FrameSet carries a client write back to the server.
	FrameSet = "set"
)

// ErrHubClosed is returned when a connection is registered on a closed hub.
var ErrHubClosed = errors.New("live: hub closed")

const defaultSendBuffer = 16

// Hub fans store changes out to connected clients. Broadcasts run
// synchronously on the stack of the write that caused them; per-connection
// buffered channels decouple slow sockets, and a client whose buffer is
// full is dropped rather than allowed to stall the writer.
type Hub struct {
	store  *store.Store
	logger *slog.Logger

	sendBuffer int

	mu     sync.Mutex
	conns  map[string]*conn
	hashes map[string]uint64
	closed bool

	listener cell.ListenerID
}

// conn is one client connection's server-side state.
type conn struct {
	id   string
	send chan []byte
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithSendBuffer sets the per-connection outbound buffer, in frames. A
// client that falls this many frames behind is dropped. Default 16.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n < 1 {
			n = 1
		}
		h.sendBuffer = n
	}
}

// NewHub attaches a hub to the store. It starts observing immediately;
// call Close to detach and disconnect every client.
func NewHub(s *store.Store, opts ...HubOption) *Hub {
	h := &Hub{
		store:      s,
		logger:     slog.Default().With("component", "live"),
		sendBuffer: defaultSendBuffer,
		conns:      make(map[string]*conn),
		hashes:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.listener = s.AddChangeListener(h.broadcast)
	return h
}

// SetLogger replaces the hub's logger.
func (h *Hub) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

// ConnCount returns the number of connected clients.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client and detaches the hub from the store.
// Clients see a normal close; registering afterwards fails with
// ErrHubClosed. Safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, cn := range h.conns {
		delete(h.conns, id)
		close(cn.send)
	}
	h.mu.Unlock()

	h.store.RemoveChangeListener(h.listener)
}

// broadcast is the store change listener body: encode the key's current
// value and fan it out. Identical consecutive payloads for a key are
// deduplicated by hash, so a change that encodes to the same JSON as the
// last broadcast is dropped before it reaches any socket.
func (h *Hub) broadcast(key string) {
	c, ok := h.store.RefAny(key)
	if !ok {
		return
	}
	data, err := c.EncodeValue()
	if err != nil {
		h.logger.Error("encode failed", "key", key, "error", err)
		return
	}
	sum := xxhash.Sum64(data)

	frame, err := json.Marshal(Frame{Type: FrameChange, Key: key, Value: data})
	if err != nil {
		h.logger.Error("frame marshal failed", "key", key, "error", err)
		return
	}

	// Channel sends stay under the lock so an eviction can never race a
	// send on the same closed channel. Sends never block: full means evict.
	var evicted []string
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if prev, ok := h.hashes[key]; ok && prev == sum {
		h.mu.Unlock()
		return
	}
	h.hashes[key] = sum

	for id, cn := range h.conns {
		select {
		case cn.send <- frame:
		default:
			delete(h.conns, id)
			close(cn.send)
			evicted = append(evicted, id)
		}
	}
	h.mu.Unlock()

	for _, id := range evicted {
		h.logger.Warn("dropping slow client", "conn_id", id)
	}
}

// register adds a connection and queues its init frame as the first
// outbound message.
func (h *Hub) register(id string) (*conn, error) {
	// Snapshot the store before taking the hub lock; store reads take the
	// store's own locks.
	values := make(map[string]json.RawMessage)
	for _, key := range h.store.Keys() {
		c, ok := h.store.RefAny(key)
		if !ok {
			continue
		}
		data, err := c.EncodeValue()
		if err != nil {
			h.logger.Error("encode failed", "key", key, "error", err)
			continue
		}
		values[key] = data
	}
	frame, err := json.Marshal(Frame{Type: FrameInit, Values: values})
	if err != nil {
		return nil, err
	}

	cn := &conn{id: id, send: make(chan []byte, h.sendBuffer)}
	cn.send <- frame

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.conns[id] = cn
	h.mu.Unlock()
	return cn, nil
}

// unregister drops a connection. No-op when the connection is already gone.
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	if cn, ok := h.conns[id]; ok {
		delete(h.conns, id)
		close(cn.send)
	}
	h.mu.Unlock()
}

// applyClientWrite decodes a client-sent value into the keyed cell. The
// write goes through the cell's Set, so it is equality-gated and notifies
// listeners and effects like any local write.
func (h *Hub) applyClientWrite(key string, value json.RawMessage) error {
	c, ok := h.store.RefAny(key)
	if !ok {
		return errors.New("unknown key")
	}
	return c.DecodeValue(value)
}
