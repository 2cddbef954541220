// Package id provides centralized ID generation for the bridge.
//
// IDs are ULIDs with a short type prefix:
//   - Lexicographic sortability: node ids sort by creation time
//   - Prefixed types: node_*, client_*, req_* are readable in logs
//   - Type safety: separate types keep ids from being mixed up
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// NodeID identifies a proxy tree node
type NodeID string

// ClientID identifies a connected stream client
type ClientID string

// RequestID identifies an API request
type RequestID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	NodePrefix    = "node"
	ClientPrefix  = "client"
	RequestPrefix = "req"
	TracePrefix   = "trace"
	SpanPrefix    = "span"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by a monotonic reader over
// crypto/rand, so ids minted within one millisecond still sort in order.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewNodeID generates a new proxy node ID
func NewNodeID() NodeID {
	return NodeID(Default().GenerateWithPrefix(NodePrefix))
}

// NewClientID generates a new stream client ID
func NewClientID() ClientID {
	return ClientID(Default().GenerateWithPrefix(ClientPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewTraceID generates a trace id for a request flow
func NewTraceID() string {
	return Default().GenerateWithPrefix(TracePrefix)
}

// NewSpanID generates a span id
func NewSpanID() string {
	return Default().GenerateWithPrefix(SpanPrefix)
}

func (id NodeID) String() string    { return string(id) }
func (id ClientID) String() string  { return string(id) }
func (id RequestID) String() string { return string(id) }

// ============================================================================
// Parsing and Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// SplitPrefix separates "prefix_ULID" into its parts. ok is false when the
// value has no prefix or the ULID part does not parse.
func SplitPrefix(prefixed string) (prefix string, value ulid.ULID, ok bool) {
	i := strings.LastIndexByte(prefixed, '_')
	if i <= 0 {
		return "", ulid.ULID{}, false
	}
	parsed, err := ulid.Parse(prefixed[i+1:])
	if err != nil {
		return "", ulid.ULID{}, false
	}
	return prefixed[:i], parsed, true
}

// Timestamp extracts the timestamp from a plain or prefixed ULID
func Timestamp(id string) (time.Time, error) {
	if _, parsed, ok := SplitPrefix(id); ok {
		return ulid.Time(parsed.Time()), nil
	}
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
