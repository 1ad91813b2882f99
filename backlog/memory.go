package backlog

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/siga-labs/txq/job"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store for tests and single-node development.
// Everything is guarded by one mutex; the structures mirror the Redis
// layout (slices for lanes and the dead list, a deadline-sorted slice
// for in-flight).
type Memory struct {
	mu       sync.Mutex
	lanes    map[string][][]byte // key: queue + "/" + priority
	paused   map[string]bool
	inflight map[string][]leaseEntry
	dead     map[string][][]byte
}

type leaseEntry struct {
	raw      []byte
	deadline time.Time
}

// NewMemory creates an empty in-memory backlog store.
func NewMemory() *Memory {
	return &Memory{
		lanes:    make(map[string][][]byte),
		paused:   make(map[string]bool),
		inflight: make(map[string][]leaseEntry),
		dead:     make(map[string][][]byte),
	}
}

func laneKey(queue string, priority int) string {
	return queue + "/p" + strconv.Itoa(priority)
}

// ── Lanes ──

func (m *Memory) Enqueue(ctx context.Context, queue string, j *job.Job) error {
	raw, err := j.Encode()
	if err != nil {
		return err
	}
	return m.EnqueueRaw(ctx, queue, job.ClampPriority(j.Priority), raw)
}

func (m *Memory) EnqueueRaw(_ context.Context, queue string, priority int, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := laneKey(queue, priority)
	m.lanes[k] = append(m.lanes[k], raw)
	return nil
}

func (m *Memory) TryDequeue(_ context.Context, queue string, priorities int) (*job.Job, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := 0; p < priorities; p++ {
		k := laneKey(queue, p)
		for len(m.lanes[k]) > 0 {
			raw := m.lanes[k][0]
			m.lanes[k] = m.lanes[k][1:]
			j, err := job.Decode(raw)
			if err != nil {
				continue
			}
			return j, raw, nil
		}
	}
	return nil, nil, nil
}

func (m *Memory) Depth(ctx context.Context, queue string, priorities int) (int64, error) {
	depths, _ := m.LaneDepths(ctx, queue, priorities)
	var total int64
	for _, d := range depths {
		total += d
	}
	return total, nil
}

func (m *Memory) LaneDepths(_ context.Context, queue string, priorities int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	depths := make([]int64, priorities)
	for p := 0; p < priorities; p++ {
		depths[p] = int64(len(m.lanes[laneKey(queue, p)]))
	}
	return depths, nil
}

func (m *Memory) Peek(_ context.Context, queue string, priority, max int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lane := m.lanes[laneKey(queue, priority)]
	if max > len(lane) {
		max = len(lane)
	}
	out := make([][]byte, max)
	copy(out, lane[:max])
	return out, nil
}

func (m *Memory) Paused(_ context.Context, queue string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused[queue], nil
}

func (m *Memory) SetPaused(_ context.Context, queue string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused[queue] = paused
	return nil
}

// ── InFlight ──

func (m *Memory) MarkInFlight(_ context.Context, queue string, raw []byte, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.inflight[queue]
	// Keep the slice sorted by deadline. Re-marking the same raw entry
	// replaces its lease, matching zset member semantics.
	entries = removeLease(entries, raw)
	i := 0
	for i < len(entries) && entries[i].deadline.Before(deadline) {
		i++
	}
	entries = append(entries, leaseEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = leaseEntry{raw: raw, deadline: deadline}
	m.inflight[queue] = entries
	return nil
}

func (m *Memory) AckInFlight(_ context.Context, queue string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight[queue] = removeLease(m.inflight[queue], raw)
	return nil
}

func (m *Memory) ExpiredInFlight(_ context.Context, queue string, now time.Time) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, e := range m.inflight[queue] {
		if e.deadline.After(now) {
			break
		}
		out = append(out, e.raw)
	}
	return out, nil
}

func (m *Memory) ListInFlight(_ context.Context, queue string, max int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.inflight[queue]
	if max > len(entries) {
		max = len(entries)
	}
	out := make([][]byte, 0, max)
	for _, e := range entries[:max] {
		out = append(out, e.raw)
	}
	return out, nil
}

func (m *Memory) InFlightDepth(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.inflight[queue])), nil
}

func removeLease(entries []leaseEntry, raw []byte) []leaseEntry {
	for i, e := range entries {
		if string(e.raw) == string(raw) {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}

// ── Dead ──

func (m *Memory) PushDead(_ context.Context, queue string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead[queue] = append(m.dead[queue], raw)
	return nil
}

func (m *Memory) PopDead(_ context.Context, queue string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dead[queue]) == 0 {
		return nil, nil
	}
	raw := m.dead[queue][0]
	m.dead[queue] = m.dead[queue][1:]
	return raw, nil
}

func (m *Memory) DeadDepth(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.dead[queue])), nil
}

func (m *Memory) ListDead(_ context.Context, queue string, max int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.dead[queue]
	if max > len(list) {
		max = len(list)
	}
	out := make([][]byte, max)
	copy(out, list[:max])
	return out, nil
}

func (m *Memory) RemoveDead(_ context.Context, queue string, match string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, raw := range m.dead[queue] {
		if containsID(string(raw), match) {
			m.dead[queue] = append(m.dead[queue][:i:i], m.dead[queue][i+1:]...)
			return raw, nil
		}
	}
	return nil, nil
}

func containsID(raw, match string) bool {
	return match != "" && strings.Contains(raw, match)
}
