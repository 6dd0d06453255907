// Package server pushes scene notifications to connected editors over
// websocket or server-sent events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/zengine/internal/core/events/bus"
	"github.com/zeusync/zengine/internal/core/observability/log"
)

// Config holds notifier configuration
type Config struct {
	// Token, when set, must be sent as ?token= or a bearer Authorization header.
	Token string
	// Buffer is the per-client queue length; messages beyond it are dropped.
	Buffer int
	// History is how many recent messages a new client receives on connect.
	History      int
	WriteTimeout time.Duration
	MaxReadSize  int64
}

// DefaultConfig returns default notifier configuration
func DefaultConfig() Config {
	return Config{
		Buffer:       64,
		History:      32,
		WriteTimeout: 5 * time.Second,
		MaxReadSize:  4096,
	}
}

// Message is the JSON document sent to clients.
type Message struct {
	Type    string    `json:"type"`
	Scene   string    `json:"scene,omitempty"`
	Objects int       `json:"objects,omitempty"`
	Time    time.Time `json:"time"`
}

// MessageHello is the first message of every connection.
const MessageHello = "hello"

// Stats contains notifier statistics
type Stats struct {
	Clients int
	Sent    uint64
	Dropped uint64
}

type client struct {
	id     string
	remote string
	send   chan []byte
}

// Notifier relays scene load and unload events from the bus to clients.
type Notifier struct {
	bus    bus.EventBus
	config Config
	logger log.Log

	mu      sync.Mutex
	clients map[*client]struct{}
	history []Message
	subs    []bus.Subscription

	server   *http.Server
	listener net.Listener
	running  atomic.Bool
	closed   atomic.Bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	workers sync.WaitGroup
}

// NewNotifier subscribes to scene events on b.
func NewNotifier(b bus.EventBus, logger log.Log, config Config) (*Notifier, error) {
	if config.Buffer <= 0 || config.History < 0 {
		return nil, fmt.Errorf("%w: buffer %d history %d", ErrInvalidConfig, config.Buffer, config.History)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	n := &Notifier{
		bus:     b,
		config:  config,
		logger:  logger.Named("notifier"),
		clients: make(map[*client]struct{}),
	}
	for _, typ := range []string{bus.SceneLoaded, bus.SceneUnloaded} {
		sub, err := b.Subscribe(typ, n.onSceneEvent)
		if err != nil {
			n.cancelSubscriptions()
			return nil, err
		}
		n.subs = append(n.subs, sub)
	}
	return n, nil
}

type sceneInfo interface {
	Name() string
	Len() int
}

func (n *Notifier) onSceneEvent(e bus.Event) error {
	m := Message{Type: e.Type(), Time: e.Timestamp()}
	if s, ok := e.Data().(sceneInfo); ok {
		m.Scene = s.Name()
		m.Objects = s.Len()
	}
	n.Broadcast(m)
	return nil
}

// Broadcast queues m for every client and records it in the history.
// Clients whose queue is full miss the message.
func (n *Notifier) Broadcast(m Message) {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	b, err := json.Marshal(m)
	if err != nil {
		n.logger.Error("encode message failed", log.String("type", m.Type), log.Error(err))
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.config.History > 0 {
		n.history = append(n.history, m)
		if over := len(n.history) - n.config.History; over > 0 {
			n.history = append(n.history[:0:0], n.history[over:]...)
		}
	}
	for c := range n.clients {
		n.enqueue(c, b)
	}
}

// enqueue must be called with n.mu held.
func (n *Notifier) enqueue(c *client, b []byte) {
	select {
	case c.send <- b:
		n.sent.Add(1)
	default:
		n.dropped.Add(1)
		n.logger.Warn("client queue full, message dropped", log.String("client", c.id))
	}
}

// register adds a client and queues the hello message and history for it.
func (n *Notifier) register(remote string) (*client, error) {
	if n.closed.Load() {
		return nil, ErrServerClosed
	}
	c := &client{
		id:     uuid.NewString(),
		remote: remote,
		send:   make(chan []byte, n.config.Buffer+n.config.History+1),
	}
	hello, err := json.Marshal(Message{Type: MessageHello, Time: time.Now()})
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.clients[c] = struct{}{}
	n.enqueue(c, hello)
	for _, m := range n.history {
		if b, err := json.Marshal(m); err == nil {
			n.enqueue(c, b)
		}
	}
	n.logger.Info("client connected", log.String("client", c.id), log.String("remote", remote))
	return c, nil
}

func (n *Notifier) unregister(c *client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.clients[c]; !ok {
		return
	}
	delete(n.clients, c)
	close(c.send)
	n.logger.Info("client disconnected", log.String("client", c.id))
}

func (n *Notifier) dropClients() {
	n.mu.Lock()
	clients := make([]*client, 0, len(n.clients))
	for c := range n.clients {
		clients = append(clients, c)
	}
	n.mu.Unlock()
	for _, c := range clients {
		n.unregister(c)
	}
}

// Start serves Handler on addr until Stop.
func (n *Notifier) Start(_ context.Context, addr string) error {
	if n.closed.Load() {
		return ErrServerClosed
	}
	if !n.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		n.running.Store(false)
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}
	n.listener = ln
	n.server = &http.Server{Handler: n.Handler(), ReadHeaderTimeout: 10 * time.Second}

	n.workers.Add(1)
	go func() {
		defer n.workers.Done()
		if err := n.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			n.logger.Error("notifier stopped serving", log.Error(err))
		}
	}()
	n.logger.Info("notifier listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address while running.
func (n *Notifier) Addr() string {
	if !n.running.Load() || n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Stop shuts the HTTP server down and disconnects every client.
func (n *Notifier) Stop(ctx context.Context) error {
	if !n.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	n.dropClients()
	err := n.server.Shutdown(ctx)
	n.workers.Wait()
	n.logger.Info("notifier stopped")
	return err
}

// Close stops the server if running and detaches from the bus.
func (n *Notifier) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if n.running.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = n.Stop(ctx)
	}
	n.dropClients()
	n.cancelSubscriptions()
	return err
}

func (n *Notifier) cancelSubscriptions() {
	for _, sub := range n.subs {
		_ = n.bus.Unsubscribe(sub)
	}
	n.subs = nil
}

// Stats returns notifier statistics
func (n *Notifier) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{
		Clients: len(n.clients),
		Sent:    n.sent.Load(),
		Dropped: n.dropped.Load(),
	}
}
