package ws

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/domain/mutation"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

// Frame types written by the hub in addition to mutate and call messages
const (
	FrameSnapshot = "snapshot"
	FrameReset    = "reset"
	FramePong     = "pong"
	FrameError    = "error"
)

// Config controls hub buffering and connection timing
type Config struct {
	HistoryLimit    int           // Messages kept per URI for resume
	SendBuffer      int           // Per-client outbound queue
	WriteTimeout    time.Duration // Deadline for one write
	PingInterval    time.Duration // Keepalive period; pong wait is derived from it
	MaxMessageBytes int64         // Largest inbound frame
}

// DefaultConfig returns the default hub configuration
func DefaultConfig() Config {
	return Config{
		HistoryLimit:    256,
		SendBuffer:      256,
		WriteTimeout:    10 * time.Second,
		PingInterval:    54 * time.Second,
		MaxMessageBytes: 4096,
	}
}

// Recorder observes hub traffic, typically for metrics
type Recorder interface {
	ClientConnected()
	ClientDisconnected()
	ClientDropped()
	Frame(direction, frameType string)
}

type nopRecorder struct{}

func (nopRecorder) ClientConnected()     {}
func (nopRecorder) ClientDisconnected()  {}
func (nopRecorder) ClientDropped()       {}
func (nopRecorder) Frame(string, string) {}

type snapshotFrame struct {
	Type  string         `json:"type"`
	URI   string         `json:"uri"`
	Epoch uint64         `json:"epoch"`
	Root  *tree.Snapshot `json:"root"`
}

type controlFrame struct {
	Type  string `json:"type"`
	URI   string `json:"uri,omitempty"`
	Error string `json:"error,omitempty"`
}

// channel is the per-URI state: subscribers plus the messages sent since
// the last history clear
type channel struct {
	epoch   uint64
	base    uint64 // messages trimmed from the front of history
	history [][]byte
	clients map[*Client]struct{}
}

func (ch *channel) sent() uint64 {
	return ch.base + uint64(len(ch.history))
}

// Hub fans surface messages out to websocket clients. It is the host side
// surface.Sender and history clearer.
type Hub struct {
	cfg      Config
	logger   *zap.Logger
	recorder Recorder

	mu       sync.Mutex
	channels map[string]*channel
	epochs   uint64 // next epoch handed out; unique across channels
	closed   bool
}

// NewHub creates a hub
func NewHub(cfg Config, logger *zap.Logger, recorder Recorder) *Hub {
	def := DefaultConfig()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		channels: make(map[string]*channel),
	}
}

// Send encodes msg once, records it in the URI's history and queues it for
// every subscriber. Clients whose queue is full are dropped.
func (h *Hub) Send(msg *mutation.Message) error {
	data, err := mutation.Encode(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	ch := h.channelLocked(msg.URI)
	ch.history = append(ch.history, data)
	if over := len(ch.history) - h.cfg.HistoryLimit; over > 0 {
		ch.history = append([][]byte(nil), ch.history[over:]...)
		ch.base += uint64(over)
	}

	for c := range ch.clients {
		h.queueLocked(ch, c, data, string(msg.Type))
	}
	return nil
}

// ClearHistory forgets the messages kept for uri and starts a new epoch
func (h *Hub) ClearHistory(uri string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clearLocked(h.channelLocked(uri))
}

func (h *Hub) clearLocked(ch *channel) {
	ch.history = nil
	ch.base = 0
	ch.epoch = h.nextEpochLocked()
}

func (h *Hub) nextEpochLocked() uint64 {
	epoch := h.epochs
	h.epochs++
	return epoch
}

// Reset tells the subscribers of uri that its surface was reset and clears
// the history. A channel left without subscribers is dropped.
func (h *Hub) Reset(uri string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[uri]
	if !ok {
		return
	}
	h.resetLocked(uri, ch)
}

// ResetAll resets every channel
func (h *Hub) ResetAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for uri, ch := range h.channels {
		h.resetLocked(uri, ch)
	}
}

func (h *Hub) resetLocked(uri string, ch *channel) {
	h.clearLocked(ch)
	data, err := sonic.Marshal(controlFrame{Type: FrameReset, URI: uri})
	if err != nil {
		return
	}
	for c := range ch.clients {
		h.queueLocked(ch, c, data, FrameReset)
	}
	h.pruneLocked(uri, ch)
}

// Epoch returns the current epoch and message count for uri
func (h *Hub) Epoch(uri string) (epoch, sent uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[uri]
	if !ok {
		return 0, 0
	}
	return ch.epoch, ch.sent()
}

// attach subscribes c and queues its snapshot as the first frame
func (h *Hub) attach(c *Client, snap *tree.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	ch := h.channelLocked(c.uri)
	data, err := sonic.Marshal(snapshotFrame{Type: FrameSnapshot, URI: c.uri, Epoch: ch.epoch, Root: snap})
	if err != nil {
		h.logger.Error("Failed to encode snapshot", zap.String("uri", c.uri), zap.Error(err))
		return false
	}

	ch.clients[c] = struct{}{}
	h.recorder.ClientConnected()
	h.queueLocked(ch, c, data, FrameSnapshot)
	return true
}

// resume subscribes c and replays the history after since when epoch is
// current and the history still reaches back that far
func (h *Hub) resume(c *Client, epoch, since uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	ch, ok := h.channels[c.uri]
	if !ok || ch.epoch != epoch || since < ch.base || since > ch.sent() {
		return false
	}
	replay := ch.history[since-ch.base:]
	if len(replay) > cap(c.send) {
		return false
	}

	ch.clients[c] = struct{}{}
	h.recorder.ClientConnected()
	for _, data := range replay {
		h.queueLocked(ch, c, data, "replay")
	}
	return true
}

// reply queues a frame for one subscribed client
func (h *Hub) reply(c *Client, frame controlFrame) {
	data, err := sonic.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.channels[c.uri]; ok {
		if _, subscribed := ch.clients[c]; subscribed {
			h.queueLocked(ch, c, data, frame.Type)
		}
	}
}

// remove unsubscribes c and closes its queue. The channel goes with its
// last client when it holds no history.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.channels[c.uri]; ok {
		if _, subscribed := ch.clients[c]; subscribed {
			delete(ch.clients, c)
			close(c.send)
			h.recorder.ClientDisconnected()
		}
		if len(ch.history) == 0 {
			h.pruneLocked(c.uri, ch)
		}
	}
}

// pruneLocked drops ch when nobody is subscribed to it
func (h *Hub) pruneLocked(uri string, ch *channel) {
	if len(ch.clients) == 0 && h.channels[uri] == ch {
		delete(h.channels, uri)
	}
}

func (h *Hub) queueLocked(ch *channel, c *Client, data []byte, frameType string) {
	select {
	case c.send <- data:
		h.recorder.Frame("out", frameType)
	default:
		// Slow client: its queue is full
		delete(ch.clients, c)
		close(c.send)
		h.recorder.ClientDropped()
		h.recorder.ClientDisconnected()
		h.logger.Warn("Dropping slow websocket client",
			zap.String("uri", c.uri),
			zap.String("client", c.id))
	}
}

func (h *Hub) channelLocked(uri string) *channel {
	ch, ok := h.channels[uri]
	if !ok {
		ch = &channel{epoch: h.nextEpochLocked(), clients: make(map[*Client]struct{})}
		h.channels[uri] = ch
	}
	return ch
}

// Stats describes hub occupancy
type Stats struct {
	Channels int `json:"channels"`
	Clients  int `json:"clients"`
}

// Stats returns channel and client counts
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Stats{Channels: len(h.channels)}
	for _, ch := range h.channels {
		stats.Clients += len(ch.clients)
	}
	return stats
}

// Close disconnects every client. Later sends are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, ch := range h.channels {
		for c := range ch.clients {
			delete(ch.clients, c)
			close(c.send)
			h.recorder.ClientDisconnected()
		}
	}
}
