package store

import (
	"context"
	"slices"
	"sync"

	"github.com/cleared-dev/stmtimport/internal/id"
	"github.com/cleared-dev/stmtimport/internal/model"
)

// Memory is an in-process Store used by dry runs and tests.
type Memory struct {
	mu    sync.Mutex
	rows  map[id.TransactionID]model.Transaction
	order []id.TransactionID
	calls int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[id.TransactionID]model.Transaction)}
}

func (m *Memory) EnsureSchema(context.Context) error { return nil }

// Upsert applies the tags-only conflict rule row by row.
func (m *Memory) Upsert(ctx context.Context, rows []Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	for _, r := range rows {
		existing, ok := m.rows[r.ID]
		if !ok {
			txn := r.Txn
			txn.Tags = slices.Clone(r.Txn.Tags)
			m.rows[r.ID] = txn
			m.order = append(m.order, r.ID)
			continue
		}
		existing.Tags = slices.Clone(r.Txn.Tags)
		m.rows[r.ID] = existing
	}
	return int64(len(rows)), nil
}

func (m *Memory) Close() error { return nil }

// Get returns the stored row for key.
func (m *Memory) Get(key id.TransactionID) (model.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.rows[key]
	return txn, ok
}

// Rows returns all stored rows in first-insert order.
func (m *Memory) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, Row{ID: k, Txn: m.rows[k]})
	}
	return out
}

// Len returns the number of distinct stored IDs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Calls returns how many times Upsert was invoked.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
