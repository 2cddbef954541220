// Package tap republishes outbound surface messages on Redis pub/sub so
// other processes can observe surfaces without holding a websocket.
// Each message is published on "<prefix>:<uri>".
package tap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/domain/mutation"
)

var (
	ErrClosed    = errors.New("tap closed")
	ErrQueueFull = errors.New("tap queue full")
)

// Publisher is the part of *redis.Client the tap uses
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Config configures the tap
type Config struct {
	Prefix         string
	PublishTimeout time.Duration
	QueueSize      int
}

type envelope struct {
	channel string
	payload []byte
}

// Tap is a surface.Sender that publishes asynchronously
type Tap struct {
	pub     Publisher
	cfg     Config
	logger  *zap.Logger
	onError func()

	mu     sync.RWMutex
	queue  chan envelope
	closed bool
	done   chan struct{}
}

// Connect dials Redis at addr and verifies the connection
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// New creates a tap publishing through pub
func New(pub Publisher, cfg Config, logger *zap.Logger, onError func()) *Tap {
	if cfg.Prefix == "" {
		cfg.Prefix = "remotedom"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if onError == nil {
		onError = func() {}
	}

	t := &Tap{
		pub:     pub,
		cfg:     cfg,
		logger:  logger,
		onError: onError,
		queue:   make(chan envelope, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Channel returns the pub/sub channel used for uri
func (t *Tap) Channel(uri string) string {
	return t.cfg.Prefix + ":" + uri
}

// Send queues msg for publishing
func (t *Tap) Send(msg *mutation.Message) error {
	payload, err := mutation.Encode(msg)
	if err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return ErrClosed
	}
	select {
	case t.queue <- envelope{channel: t.Channel(msg.URI), payload: payload}:
		return nil
	default:
		t.onError()
		return ErrQueueFull
	}
}

func (t *Tap) run() {
	defer close(t.done)
	for env := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.PublishTimeout)
		err := t.pub.Publish(ctx, env.channel, env.payload).Err()
		cancel()
		if err != nil {
			t.onError()
			t.logger.Debug("Tap publish failed",
				zap.String("channel", env.channel),
				zap.Error(err))
		}
	}
}

// Close stops accepting messages and waits for queued ones to be published
// or ctx to end
func (t *Tap) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
