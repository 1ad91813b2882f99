package status

import (
	"context"
	"sync"
	"time"

	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process status store for tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemory creates an empty in-memory status store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) Add(_ context.Context, queue string, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[j.ID.String()] = newRecord(queue, j)
	return nil
}

func (m *Memory) Get(_ context.Context, txID id.ID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[txID.String()]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) UpdateState(_ context.Context, txID id.ID, state job.State, attempt int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[txID.String()]
	if !ok {
		rec = &Record{ID: txID, CreatedAt: time.Now().UTC()}
		m.records[txID.String()] = rec
	}
	rec.State = state
	rec.Attempt = attempt
	rec.LastError = errMsg
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) MarkFinalized(_ context.Context, txID id.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[txID.String()]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	rec.FinalizedAt = &at
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
