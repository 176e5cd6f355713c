package http

import (
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/forestlens/internal/adapters/nats"
	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/pkg/metrics"
)

const wsPingInterval = 30 * time.Second

// wsRequest is a client command. An empty endpoint list means every endpoint.
type wsRequest struct {
	Action    string   `json:"action"` // "subscribe" | "unsubscribe"
	Endpoints []string `json:"endpoints,omitempty"`
}

// wsReply is every frame the server sends: command acks, errors, and relayed
// analysis events.
type wsReply struct {
	Type      string          `json:"type"` // "ack" | "error" | "analysis"
	Action    string          `json:"action,omitempty"`
	Endpoints []string        `json:"endpoints,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

var wsEndpoints = map[domain.Endpoint]bool{
	domain.EndpointAnalyze:    true,
	domain.EndpointForestLoss: true,
	domain.EndpointAlerts:     true,
}

// wsFilter is the set of endpoints a connection receives. Empty means all.
type wsFilter struct {
	mu  sync.RWMutex
	set map[domain.Endpoint]bool
}

func newWSFilter() *wsFilter {
	return &wsFilter{set: make(map[domain.Endpoint]bool)}
}

func (f *wsFilter) wants(subject string) bool {
	e := domain.Endpoint(strings.TrimPrefix(subject, natsadapter.SubjectPrefix))
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.set) == 0 || f.set[e]
}

// apply runs one client command against the filter.
func (f *wsFilter) apply(req wsRequest) wsReply {
	names := make([]domain.Endpoint, 0, len(req.Endpoints))
	for _, n := range req.Endpoints {
		e := domain.Endpoint(n)
		if !wsEndpoints[e] {
			return wsReply{Type: "error", Action: req.Action, Error: "unknown endpoint: " + n}
		}
		names = append(names, e)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch req.Action {
	case "subscribe":
		if len(names) == 0 {
			clear(f.set)
		}
		for _, e := range names {
			f.set[e] = true
		}
	case "unsubscribe":
		if len(names) == 0 {
			return wsReply{Type: "error", Action: req.Action, Error: "unsubscribe needs endpoints"}
		}
		next := make(map[domain.Endpoint]bool, len(wsEndpoints))
		if len(f.set) == 0 {
			maps.Copy(next, wsEndpoints)
		} else {
			maps.Copy(next, f.set)
		}
		for _, e := range names {
			delete(next, e)
		}
		if len(next) == 0 {
			return wsReply{Type: "error", Action: req.Action, Error: "at least one endpoint must stay subscribed"}
		}
		f.set = next
	default:
		return wsReply{Type: "error", Error: "unknown action: " + req.Action}
	}
	return wsReply{Type: "ack", Action: req.Action, Endpoints: f.listLocked()}
}

func (f *wsFilter) listLocked() []string {
	if len(f.set) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(f.set))
	for e := range f.set {
		out = append(out, string(e))
	}
	sort.Strings(out)
	return out
}

// WebSocketHandler relays analysis-completed events from NATS. A connection
// starts with every endpoint and narrows with
// {"action":"subscribe","endpoints":["alerts"]}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		var writeMu sync.Mutex
		send := func(r wsReply) error {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		if nc == nil {
			_ = send(wsReply{Type: "error", Error: "event relay not configured"})
			return
		}

		log := slog.Default().With("remote", c.RemoteAddr().String())
		filter := newWSFilter()

		sub, err := nc.Subscribe(natsadapter.SubjectAll, func(msg *nats.Msg) {
			if filter.wants(msg.Subject) {
				_ = send(wsReply{Type: "analysis", Event: json.RawMessage(msg.Data)})
			}
		})
		if err != nil {
			log.Error("ws relay subscribe failed", "error", err)
			_ = send(wsReply{Type: "error", Error: "event relay unavailable"})
			return
		}
		defer func() { _ = sub.Unsubscribe() }()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		log.Info("ws client connected")
		defer log.Info("ws client disconnected")

		done := make(chan struct{})
		defer close(done)
		go func() {
			t := time.NewTicker(wsPingInterval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					writeMu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					writeMu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				_ = send(wsReply{Type: "error", Error: "invalid JSON"})
				continue
			}
			_ = send(filter.apply(req))
		}
	}
}
