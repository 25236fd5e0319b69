// Package consolefeed is a websocket push transport for the optional
// console/TUI metrics feed (spec §1). It carries no consensus-relevant
// state: a console attached to this feed is a passive observer, never a
// participant in chain validation.
package consolefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	klog "github.com/klingon-tech/plotchain/internal/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 16
)

// EventKind labels what an Event carries, so a console client can decode
// Payload without guessing.
type EventKind string

const (
	EventSnapshot EventKind = "snapshot" // periodic ChainSnapshot
	EventBlock    EventKind = "block"    // a new block was confirmed
	EventSolution EventKind = "solution" // the local farmer found a winning solution
)

// Event is one message pushed to every connected console.
type Event struct {
	Kind EventKind   `json:"kind"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// ChainSnapshot is the periodic EventSnapshot payload.
type ChainSnapshot struct {
	Height      uint64 `json:"height"`
	ForkCount   int    `json:"fork_count"`
	Epoch       uint64 `json:"epoch"`
	Timeslot    uint64 `json:"timeslot"`
	MempoolSize int    `json:"mempool_size"`
	PeersCount  int    `json:"peers_count"`
}

// BlockEvent is the EventBlock payload.
type BlockEvent struct {
	ProofID   string `json:"proof_id"`
	ContentID string `json:"content_id"`
	Height    uint64 `json:"height"`
}

// SolutionEvent is the EventSolution payload.
type SolutionEvent struct {
	Timeslot        uint64 `json:"timeslot"`
	LeadingZeroBits int    `json:"leading_zero_bits"`
}

// Hub fans Event values out to every connected websocket client. The zero
// value is not usable; construct with New.
type Hub struct {
	log zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	broadcast  chan Event
	register   chan *client
	unregister chan *client
	stopped    chan struct{}
}

// New creates a Hub. allowedOrigins mirrors the RPC server's CORS list: an
// empty list allows every origin, "*" allows every origin explicitly, and
// anything else is matched against the request's Origin header.
func New(allowedOrigins []string) *Hub {
	h := &Hub{
		log:        klog.WithComponent("consolefeed"),
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Event, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		stopped:    make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin(allowedOrigins),
	}
	return h
}

func (h *Hub) checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run drains registrations and broadcasts until ctx is cancelled. Must be
// started before ServeWS is called from an HTTP handler.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = nil
			h.mu.Unlock()
			close(h.stopped)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("failed to marshal feed event")
				continue
			}
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Client's buffer is full; it is too slow to keep up
					// with the feed. Drop it rather than block the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues ev for delivery to every connected client. Non-blocking:
// if the hub's broadcast buffer is full, the event is dropped and logged,
// since this feed is best-effort and never consensus-relevant.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn().Str("kind", string(ev.Kind)).Msg("feed broadcast buffer full, dropping event")
	}
}

// PublishSnapshot is a convenience wrapper for the common periodic case.
func (h *Hub) PublishSnapshot(s ChainSnapshot) {
	h.Publish(Event{Kind: EventSnapshot, At: time.Now(), Data: s})
}

// PublishBlock announces a newly confirmed block.
func (h *Hub) PublishBlock(b BlockEvent) {
	h.Publish(Event{Kind: EventBlock, At: time.Now(), Data: b})
}

// PublishSolution announces a winning solution the local farmer found.
func (h *Hub) PublishSolution(s SolutionEvent) {
	h.Publish(Event{Kind: EventSolution, At: time.Now(), Data: s})
}

// ServeWS upgrades r to a websocket connection and registers it with the
// hub. Intended to be mounted directly as an http.HandlerFunc.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, clientSendSize)}
	select {
	case h.register <- c:
	case <-h.stopped:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount reports the number of currently connected consoles.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
