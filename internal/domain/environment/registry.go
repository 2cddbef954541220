// Package environment keeps one surface per URI and wires each of them to
// the host's sender and history clearer.
package environment

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
)

// Gauge tracks the number of registered surfaces. prometheus.Gauge
// satisfies it.
type Gauge interface {
	Set(float64)
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSurfaceOptions applies opts to every surface the registry creates
func WithSurfaceOptions(opts ...surface.Option) Option {
	return func(r *Registry) {
		r.surfaceOpts = append(r.surfaceOpts, opts...)
	}
}

// WithGauge reports the active surface count to g
func WithGauge(g Gauge) Option {
	return func(r *Registry) {
		r.gauge = g
	}
}

// Registry maps surface URIs to surfaces. It is safe for concurrent use.
type Registry struct {
	logger      *zap.Logger
	surfaceOpts []surface.Option
	gauge       Gauge

	mu       sync.RWMutex
	surfaces map[string]*surface.Surface
	sender   surface.Sender
	clearer  surface.HistoryClearer
	notify   func(uri string)
}

// Stats describes registry contents
type Stats struct {
	Surfaces int `json:"surfaces"`
	Nodes    int `json:"nodes"`
	Pending  int `json:"pending"`
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:   zap.NewNop(),
		surfaces: make(map[string]*surface.Surface),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the surface for uri, creating it on first use. An empty uri
// yields a fresh surface that is never stored.
func (r *Registry) Get(uri string) *surface.Surface {
	if uri == "" {
		r.mu.RLock()
		s := r.newSurfaceLocked(uri)
		r.mu.RUnlock()
		return s
	}

	r.mu.RLock()
	s, ok := r.surfaces[uri]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.surfaces[uri]; ok {
		return s
	}
	s = r.newSurfaceLocked(uri)
	r.surfaces[uri] = s
	r.reportLocked()

	r.logger.Debug("Surface created", zap.String("uri", uri))
	return s
}

// Lookup returns the surface for uri without creating it
func (r *Registry) Lookup(uri string) (*surface.Surface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[uri]
	return s, ok
}

// Reset clears the surface for uri and forgets it. The next Get creates a
// new one. It reports whether a surface existed.
func (r *Registry) Reset(uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.surfaces[uri]
	if !ok {
		return false
	}
	delete(r.surfaces, uri)
	r.reportLocked()
	r.retireLocked(uri, s)

	r.logger.Debug("Surface removed", zap.String("uri", uri))
	return true
}

// ResetAll clears and forgets every surface. It returns the removed URIs.
func (r *Registry) ResetAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.surfaces
	r.surfaces = make(map[string]*surface.Surface)
	r.reportLocked()

	uris := make([]string, 0, len(old))
	for uri := range old {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	for _, uri := range uris {
		r.retireLocked(uri, old[uri])
	}

	if len(uris) > 0 {
		r.logger.Debug("Surfaces removed", zap.Int("count", len(uris)))
	}
	return uris
}

// retireLocked resets s and runs the reset notifier. Holding mu keeps a
// replacement surface for uri from sending before the notification.
func (r *Registry) retireLocked(uri string, s *surface.Surface) {
	s.Reset()
	if r.notify != nil {
		r.notify(uri)
	}
}

// SetResetNotifier registers fn to run for every URI removed by Reset or
// ResetAll. fn runs with the registry locked and must not call back into
// it.
func (r *Registry) SetResetNotifier(fn func(uri string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = fn
}

// SetSender makes snd the default sender and applies it to every registered
// surface
func (r *Registry) SetSender(snd surface.Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sender = snd
	for _, s := range r.surfaces {
		s.SetSender(snd)
	}
}

// SetHistoryClearer makes c the default clearer and applies it to every
// registered surface
func (r *Registry) SetHistoryClearer(c surface.HistoryClearer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearer = c
	for _, s := range r.surfaces {
		s.SetHistoryClearer(c)
	}
}

// URIs returns the registered URIs in sorted order
func (r *Registry) URIs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uris := make([]string, 0, len(r.surfaces))
	for uri := range r.surfaces {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// Len returns the number of registered surfaces
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}

// Stats sums node and pending record counts over all surfaces
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	list := make([]*surface.Surface, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		list = append(list, s)
	}
	r.mu.RUnlock()

	stats := Stats{Surfaces: len(list)}
	for _, s := range list {
		stats.Nodes += s.Len()
		stats.Pending += s.Pending()
	}
	return stats
}

func (r *Registry) newSurfaceLocked(uri string) *surface.Surface {
	opts := make([]surface.Option, 0, len(r.surfaceOpts)+3)
	opts = append(opts, surface.WithLogger(r.logger.With(zap.String("uri", uri))))
	opts = append(opts, r.surfaceOpts...)
	if r.sender != nil {
		opts = append(opts, surface.WithSender(r.sender))
	}
	if r.clearer != nil {
		opts = append(opts, surface.WithHistoryClearer(r.clearer))
	}
	return surface.New(uri, opts...)
}

func (r *Registry) reportLocked() {
	if r.gauge != nil {
		r.gauge.Set(float64(len(r.surfaces)))
	}
}
