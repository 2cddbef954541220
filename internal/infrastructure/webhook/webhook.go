// Package webhook forwards outbound surface messages to an HTTP endpoint.
//
// Delivery is asynchronous and best effort: Send never blocks the surface
// that produced the message, a full queue drops the message, failed posts
// are not retried and a circuit breaker stops posting to an endpoint that
// keeps failing.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/domain/mutation"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/resilience"
)

var (
	ErrClosed    = errors.New("webhook sink closed")
	ErrQueueFull = errors.New("webhook queue full")
)

// Config configures the sink
type Config struct {
	URL       string
	Timeout   time.Duration
	QueueSize int
}

type envelope struct {
	uri  string
	body []byte
}

// Sink posts each message as JSON to the configured URL. It implements
// surface.Sender.
type Sink struct {
	client  *resty.Client
	url     string
	breaker *resilience.Breaker
	logger  *zap.Logger
	onError func()

	mu     sync.RWMutex
	queue  chan envelope
	closed bool
	done   chan struct{}
}

// Option configures a Sink
type Option func(*Sink)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBreaker replaces the default circuit breaker
func WithBreaker(b *resilience.Breaker) Option {
	return func(s *Sink) {
		s.breaker = b
	}
}

// WithErrorHook is called once for every message that was not delivered
func WithErrorHook(fn func()) Option {
	return func(s *Sink) {
		s.onError = fn
	}
}

// New creates a sink and starts its delivery goroutine
func New(cfg Config, opts ...Option) *Sink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	s := &Sink{
		url:     cfg.URL,
		logger:  zap.NewNop(),
		onError: func() {},
		queue:   make(chan envelope, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = resilience.New("webhook", resilience.Settings{
			Timeout: 30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				s.logger.Warn("Sink breaker changed state",
					zap.String("sink", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		})
	}

	s.client = resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "remotedom-webhook/1.0")

	go s.run()
	return s
}

// Send queues msg for delivery
func (s *Sink) Send(msg *mutation.Message) error {
	body, err := mutation.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- envelope{uri: msg.URI, body: body}:
		return nil
	default:
		s.onError()
		return ErrQueueFull
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for env := range s.queue {
		if err := s.post(env); err != nil {
			s.onError()
			s.logger.Debug("Webhook delivery failed",
				zap.String("uri", env.uri),
				zap.Error(err))
		}
	}
}

func (s *Sink) post(env envelope) error {
	return s.breaker.Do(func() error {
		resp, err := s.client.R().
			SetContext(context.Background()).
			SetHeader("X-Surface-URI", env.uri).
			SetBody(env.body).
			Post(s.url)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("webhook returned %s", resp.Status())
		}
		return nil
	})
}

// Close stops accepting messages and waits until queued ones were tried
// or ctx ends
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
