package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
)

var errClosed = errors.New("script runtime is closed")

// Runtime wraps a goja VM with security controls
type Runtime struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex

	// Call ids issued by remote.call during the current execution
	calls []string
}

// New creates a new sandboxed runtime
func New(config Config) (*Runtime, error) {
	r := &Runtime{
		config:  config,
		console: []LogEntry{},
	}
	if err := r.rebuild(); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs a script with s bound as the document. s may be nil, in
// which case document and remote are undefined.
func (r *Runtime) Execute(ctx context.Context, src string, s *surface.Surface) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, errClosed
	}

	start := time.Now()
	result := &Result{Console: []LogEntry{}}

	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()
	r.calls = nil

	if err := r.bind(s); err != nil {
		return nil, fmt.Errorf("failed to bind surface: %w", err)
	}

	stop := r.watch(ctx)
	val, err := r.run(src)
	stop()
	if s != nil {
		// Scratch nodes die with the run that made them
		s.ReleaseDetached()
	}

	result.Duration = time.Since(start)
	result.Calls = r.calls

	r.consoleMu.Lock()
	result.Console = append(result.Console, r.console...)
	r.consoleMu.Unlock()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			err = fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
		}
		result.Error = err
		return result, err
	}

	result.Value = r.exportValue(val)
	return result, nil
}

// watch interrupts the VM on timeout or cancellation. The returned func
// stops the watcher and clears any interrupt it raised.
func (r *Runtime) watch(ctx context.Context) func() {
	timeout := r.config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	timer := time.NewTimer(timeout)
	done := make(chan struct{})
	exited := make(chan struct{})
	vm := r.vm

	go func() {
		defer close(exited)
		select {
		case <-timer.C:
			vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	return func() {
		timer.Stop()
		close(done)
		<-exited
		if r.vm != nil {
			r.vm.ClearInterrupt()
		}
	}
}

// run executes src. A Go panic escaping the VM comes from a broken tree
// invariant; the VM is rebuilt since its state is unknown.
func (r *Runtime) run(src string) (val goja.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrInvariant, p)
			if rebuildErr := r.rebuild(); rebuildErr != nil {
				r.vm = nil
			}
		}
	}()
	return r.vm.RunString(src)
}

// rebuild replaces the VM with a fresh one
func (r *Runtime) rebuild() error {
	vm := goja.New()
	if r.config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.vm = vm
	return r.setupGlobals()
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports", "document", "remote"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}

	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		if err := r.vm.Set(name, noop); err != nil {
			return err
		}
	}
	return nil
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		return goja.Undefined()
	}
}

// exportValue converts goja value to Go value
func (r *Runtime) exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Reset clears the runtime state
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return errClosed
	}
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()
	r.calls = nil
	return r.rebuild()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.console = nil
	return nil
}
