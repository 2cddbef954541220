package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{NodePrefix, ClientPrefix, RequestPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		if !strings.HasPrefix(id, prefix+"_") {
			t.Errorf("ID should start with '%s_', got: %s", prefix, id)
		}

		got, _, ok := SplitPrefix(id)
		if !ok {
			t.Fatalf("SplitPrefix should accept %s", id)
		}
		if got != prefix {
			t.Errorf("Expected prefix %q, got %q", prefix, got)
		}
	}
}

func TestTypedIDGeneration(t *testing.T) {
	if !strings.HasPrefix(NewNodeID().String(), "node_") {
		t.Error("NodeID should start with 'node_'")
	}
	if !strings.HasPrefix(NewClientID().String(), "client_") {
		t.Error("ClientID should start with 'client_'")
	}
	if !strings.HasPrefix(NewRequestID().String(), "req_") {
		t.Error("RequestID should start with 'req_'")
	}
}

func TestSplitPrefixRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "node", "_01ARZ3NDEKTSV4RRFFQ69G5FAV", "node_notaulid"} {
		if _, _, ok := SplitPrefix(v); ok {
			t.Errorf("SplitPrefix(%q) should fail", v)
		}
	}
}

func TestIsValid(t *testing.T) {
	gen := NewGenerator()

	if !IsValid(gen.GenerateString()) {
		t.Error("Generated ULID should be valid")
	}

	for _, id := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now()
	nodeID := NewNodeID()
	after := time.Now()

	ts, err := Timestamp(nodeID.String())
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	// ULID timestamps have millisecond precision
	if ts.UnixMilli() < before.UnixMilli() || ts.UnixMilli() > after.UnixMilli() {
		t.Errorf("Timestamp %v outside [%v, %v]", ts, before, after)
	}
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	gen := NewGenerator()

	prev := gen.GenerateString()
	for i := 0; i < 500; i++ {
		next := gen.GenerateString()
		if next <= prev {
			t.Fatalf("IDs should increase: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- gen.GenerateString()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for id := range idChan {
		if seen[id] {
			t.Errorf("Duplicate ID found in concurrent generation: %s", id)
		}
		seen[id] = true
	}

	if len(seen) != goroutines*idsPerGoroutine {
		t.Errorf("Expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}

func TestDefaultGenerator(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() should return the same instance")
	}
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(NodePrefix)
	}
}
