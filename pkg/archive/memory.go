// Copyright 2024-2026 Aiku AI

package archive

import (
	"context"
	"sync"

	"github.com/aiku/bridgewatch/pkg/monitor"
)

// MemorySink keeps records in process memory. It backs dry runs and tests;
// like the Mongo sink, re-inserting an event ID is a no-op.
type MemorySink struct {
	mu      sync.Mutex
	records map[string]*monitor.MessageRecord
	order   []string
}

var _ monitor.Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]*monitor.MessageRecord)}
}

// Insert stores the record unless its event ID was already seen.
func (s *MemorySink) Insert(_ context.Context, rec *monitor.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.records[rec.EventID]; dup {
		return nil
	}
	s.records[rec.EventID] = rec
	s.order = append(s.order, rec.EventID)
	return nil
}

// Records returns the stored records in insertion order.
func (s *MemorySink) Records() []*monitor.MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*monitor.MessageRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Len returns the number of stored records.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
