package script

import (
	"errors"
	"time"
)

var (
	ErrPoolClosed  = errors.New("script pool is closed")
	ErrTimeout     = errors.New("script runtime acquisition timeout")
	ErrInvariant   = errors.New("tree invariant violated")
	ErrNoSurface   = errors.New("no surface bound")
	ErrInterrupted = errors.New("script interrupted")
)

// Config defines runtime configuration
type Config struct {
	Timeout        time.Duration // Execution timeout
	AcquireTimeout time.Duration // Pool acquisition timeout
	MaxCallStack   int           // goja call stack limit
	EnableConsole  bool          // Allow console.log/warn/error/info
}

// Result holds execution result
type Result struct {
	Value    any           `json:"value"`
	Console  []LogEntry    `json:"console"`
	Calls    []string      `json:"calls,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"-"`
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// PoolStats describes pool occupancy
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// DefaultConfig returns the default runtime configuration
func DefaultConfig() Config {
	return Config{
		Timeout:        5 * time.Second,
		AcquireTimeout: 5 * time.Second,
		MaxCallStack:   1024,
		EnableConsole:  true,
	}
}
