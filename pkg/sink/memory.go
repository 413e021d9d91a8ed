package sink

import (
	"context"

	"github.com/mvolek/estates-harvest/pkg/normalize"
)

// Memory is an in-memory Sink for tests and dry runs.
type Memory struct {
	records map[string]normalize.Record
	order   []string
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]normalize.Record)}
}

func (m *Memory) Open(ctx context.Context) error { return nil }

func (m *Memory) Upsert(ctx context.Context, rec normalize.Record) error {
	if _, ok := m.records[rec.Hash]; !ok {
		m.order = append(m.order, rec.Hash)
	}
	m.records[rec.Hash] = rec
	return nil
}

func (m *Memory) Close() error { return nil }

// Len returns the number of distinct records stored.
func (m *Memory) Len() int { return len(m.records) }

// Records returns stored records in first-upsert order.
func (m *Memory) Records() []normalize.Record {
	out := make([]normalize.Record, 0, len(m.order))
	for _, hash := range m.order {
		out = append(out, m.records[hash])
	}
	return out
}
