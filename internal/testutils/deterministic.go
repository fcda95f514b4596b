// Package testutils provides deterministic generators, collaborator fakes and
// file helpers for pipefixture tests.
package testutils

import (
	"fmt"
	"sync"
)

// IDSequence hands out deterministic UUID-shaped identifiers:
// 00000001-0000-4000-8000-000000000001, 00000002-0000-4000-8000-000000000002, ...
type IDSequence struct {
	mu      sync.Mutex
	counter uint64
}

// NewIDSequence returns a sequence starting at 1.
func NewIDSequence() *IDSequence {
	return &IDSequence{}
}

// Next returns the next identifier. Safe for concurrent use.
func (s *IDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++

	// Format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx, version 4, variant 8
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", s.counter, s.counter)
}

// Reset restarts the sequence at 1.
func (s *IDSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter = 0
}

// CallLog records collaborator calls in order. Several fakes may share one
// log so tests can assert on the interleaving.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Record appends a call.
func (l *CallLog) Record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}
