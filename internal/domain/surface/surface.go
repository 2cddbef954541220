// Package surface batches the mutations of one proxy tree into outbound
// messages.
//
// A surface is Idle until the first mutation arrives. It then schedules a
// deferred flush and becomes Scheduled; later mutations are appended to the
// same batch. When the flush fires the whole batch leaves as one mutate
// message and the surface is Idle again. Flush forces that step early.
//
// Two locks are involved. mu guards the tree, the batch and the timer.
// sendMu is held from taking a batch until the sender returns, so messages
// leave in the order their records were produced. Lock order is sendMu
// before mu.
package surface

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/domain/codec"
	"github.com/GriffinCanCode/remotedom/internal/domain/mutation"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

// Flush reasons reported to the Recorder
const (
	ReasonTimer    = "timer"
	ReasonForced   = "forced"
	ReasonMaxBatch = "max_batch"
	ReasonCall     = "call"
	ReasonSync     = "sync"
)

// Drop reasons reported to the Recorder
const (
	DropNoSender  = "no_sender"
	DropSendError = "send_error"
	DropCleared   = "cleared"
	DropReset     = "reset"
)

// Option configures a Surface
type Option func(*Surface)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Surface) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScheduler replaces the deferred flush scheduler
func WithScheduler(sched Scheduler) Option {
	return func(s *Surface) {
		if sched != nil {
			s.scheduler = sched
		}
	}
}

// WithFlushDelay sets how long a batch stays open after its first record
func WithFlushDelay(d time.Duration) Option {
	return func(s *Surface) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithMaxBatch flushes immediately once n records are pending. Zero
// disables the limit.
func WithMaxBatch(n int) Option {
	return func(s *Surface) {
		if n >= 0 {
			s.maxBatch = n
		}
	}
}

// WithRecorder sets the activity recorder
func WithRecorder(r Recorder) Option {
	return func(s *Surface) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithSender sets the initial sender
func WithSender(snd Sender) Option {
	return func(s *Surface) {
		s.sender = snd
	}
}

// WithHistoryClearer sets the initial history clearer
func WithHistoryClearer(c HistoryClearer) Option {
	return func(s *Surface) {
		s.clearer = c
	}
}

// withCallIDs replaces the call id source
func withCallIDs(next func() string) Option {
	return func(s *Surface) {
		s.newCallID = next
	}
}

// Surface is a logical UI region: one proxy tree plus its pending batch
type Surface struct {
	uri       string
	logger    *zap.Logger
	scheduler Scheduler
	delay     time.Duration
	maxBatch  int
	recorder  Recorder
	newCallID func() string

	sendMu sync.Mutex

	mu      sync.Mutex
	tree    *tree.Tree
	batch   []mutation.Record
	timer   Timer
	gen     uint64
	sender  Sender
	clearer HistoryClearer
}

// New creates a surface for uri. uri may be empty.
func New(uri string, opts ...Option) *Surface {
	s := &Surface{
		uri:       uri,
		logger:    zap.NewNop(),
		scheduler: realScheduler{},
		recorder:  nopRecorder{},
		newCallID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tree = tree.New(batcher{s})
	return s
}

// URI returns the surface key
func (s *Surface) URI() string {
	return s.uri
}

// SetSender replaces the sender. nil detaches it.
func (s *Surface) SetSender(snd Sender) {
	s.mu.Lock()
	s.sender = snd
	s.mu.Unlock()
}

// SetHistoryClearer replaces the history clearer. nil detaches it.
func (s *Surface) SetHistoryClearer(c HistoryClearer) {
	s.mu.Lock()
	s.clearer = c
	s.mu.Unlock()
}

// Pending returns the number of records waiting for a flush
func (s *Surface) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}

// Scheduled reports whether a deferred flush is pending
func (s *Surface) Scheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Flush sends the pending batch now, cancelling the deferred flush.
// It is a no-op when nothing is pending.
func (s *Surface) Flush() {
	s.flush(ReasonForced)
}

func (s *Surface) flush(reason string) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	records, snd := s.takeLocked()
	s.mu.Unlock()

	s.deliver(records, snd, reason)
}

// fire runs the deferred flush scheduled as generation gen. A timer that
// was cancelled after it had already started finds a newer generation and
// does nothing.
func (s *Surface) fire(gen uint64) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.timer == nil || s.gen != gen {
		s.mu.Unlock()
		return
	}
	records, snd := s.takeLocked()
	s.mu.Unlock()

	s.deliver(records, snd, ReasonTimer)
}

// Call flushes pending mutations, then sends a call message. It returns the
// call id.
func (s *Surface) Call(method string, args ...any) string {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	records, snd := s.takeLocked()
	callID := s.newCallID()
	s.mu.Unlock()

	s.deliver(records, snd, ReasonCall)

	if args == nil {
		args = []any{}
	}
	msg := mutation.NewCall(s.uri, callID, method, args)
	if snd == nil {
		s.logger.Debug("Call dropped, no sender",
			zap.String("uri", s.uri),
			zap.String("method", method))
		return callID
	}
	if err := snd.Send(msg); err != nil {
		s.logger.Warn("Call delivery failed",
			zap.String("uri", s.uri),
			zap.String("method", method),
			zap.Error(err))
		return callID
	}
	s.recorder.CallSent(method)
	return callID
}

// ClearHistory drops the pending batch and asks the host to forget the
// history it keeps for this surface.
func (s *Surface) ClearHistory() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	records, _ := s.takeLocked()
	clearer := s.clearer
	s.mu.Unlock()

	if len(records) > 0 {
		s.recorder.BatchDropped(len(records), DropCleared)
	}
	if clearer != nil {
		clearer(s.uri)
	}
}

// Sync brings a new client up to date. Pending records are flushed, the
// root is serialised, host history is cleared and attach is called with
// the snapshot. No message can be sent between the snapshot and attach.
func (s *Surface) Sync(attach func(*tree.Snapshot)) *tree.Snapshot {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	records, snd := s.takeLocked()
	snap, _ := s.tree.Serialize(tree.RootID)
	clearer := s.clearer
	s.mu.Unlock()

	s.deliver(records, snd, ReasonSync)
	if clearer != nil {
		clearer(s.uri)
	}
	if attach != nil {
		attach(snap)
	}
	return snap
}

// Reset retires the surface: the timer is cancelled, the batch dropped, the
// tree emptied and the sender and clearer detached.
func (s *Surface) Reset() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	records, _ := s.takeLocked()
	s.tree.Reset()
	s.sender = nil
	s.clearer = nil
	s.mu.Unlock()

	if len(records) > 0 {
		s.recorder.BatchDropped(len(records), DropReset)
	}
	s.logger.Debug("Surface reset", zap.String("uri", s.uri))
}

// takeLocked cancels the deferred flush and detaches the batch
func (s *Surface) takeLocked() ([]mutation.Record, Sender) {
	s.cancelLocked()
	records := s.batch
	s.batch = nil
	return records, s.sender
}

func (s *Surface) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Surface) scheduleLocked() {
	s.gen++
	gen := s.gen
	s.timer = s.scheduler.AfterFunc(s.delay, func() {
		s.fire(gen)
	})
}

func (s *Surface) deliver(records []mutation.Record, snd Sender, reason string) {
	if len(records) == 0 {
		return
	}
	if snd == nil {
		s.recorder.BatchDropped(len(records), DropNoSender)
		s.logger.Debug("Batch dropped, no sender",
			zap.String("uri", s.uri),
			zap.Int("records", len(records)))
		return
	}
	if err := snd.Send(mutation.NewMutate(s.uri, records)); err != nil {
		s.recorder.BatchDropped(len(records), DropSendError)
		s.logger.Warn("Batch delivery failed",
			zap.String("uri", s.uri),
			zap.Int("records", len(records)),
			zap.Error(err))
		return
	}
	s.recorder.BatchSent(len(records), reason)
}

// enqueueLocked appends a record and schedules the deferred flush when the
// surface was Idle
func (s *Surface) enqueueLocked(rec mutation.Record) {
	s.batch = append(s.batch, rec)
	s.recorder.MutationQueued(rec.Kind)
	if s.timer == nil {
		s.scheduleLocked()
	}
}

// edit runs fn against the tree under mu and flushes when the batch limit
// is reached. A panic in fn releases the lock before propagating.
func (s *Surface) edit(fn func(t *tree.Tree) error) error {
	full := false
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		err := fn(s.tree)
		full = s.maxBatch > 0 && len(s.batch) >= s.maxBatch
		return err
	}()
	if full {
		s.flush(ReasonMaxBatch)
	}
	return err
}

func (s *Surface) read(fn func(t *tree.Tree)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.tree)
}

// batcher feeds tree callbacks into the pending batch. The tree only calls
// it while the surface holds mu.
type batcher struct {
	s *Surface
}

func (b batcher) InsertChild(parent tree.NodeID, child *tree.Snapshot, index int) {
	b.s.enqueueLocked(mutation.InsertChild(parent, child, index))
}

func (b batcher) RemoveChild(parent tree.NodeID, index int) {
	b.s.enqueueLocked(mutation.RemoveChild(parent, index))
}

func (b batcher) UpdateText(node tree.NodeID, text string) {
	b.s.enqueueLocked(mutation.UpdateText(node, text))
}

func (b batcher) UpdateProperty(node tree.NodeID, name, value string, hint codec.Hint) {
	b.s.enqueueLocked(mutation.UpdateProperty(node, name, value, hint))
}
