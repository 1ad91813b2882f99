// Package backlog defines the durable queue state: per-queue priority
// lanes, the paused flag, the in-flight lease set, and the dead-letter
// list. The Redis backend is authoritative for "what runs next"; the
// memory backend backs unit tests.
package backlog

import (
	"context"
	"time"

	"github.com/siga-labs/txq/job"
)

// Lanes is the priority-lane contract. Each lane is FIFO (push at tail,
// pop at head); dequeue scans lanes from 0 (highest) upward and returns
// the first available job, which yields strict priority ordering with
// FIFO within a band.
type Lanes interface {
	// Enqueue appends the job to the lane for its priority.
	Enqueue(ctx context.Context, queue string, j *job.Job) error

	// EnqueueRaw appends an already-serialized job to the given lane.
	// Used by dead-letter replay, which moves raw payloads untouched.
	EnqueueRaw(ctx context.Context, queue string, priority int, raw []byte) error

	// TryDequeue pops the first available job scanning lanes 0..priorities-1.
	// Returns the job plus its raw encoding (for in-flight bookkeeping),
	// or (nil, nil, nil) when every lane is empty. Corrupt entries are
	// discarded rather than returned.
	TryDequeue(ctx context.Context, queue string, priorities int) (*job.Job, []byte, error)

	// Depth returns the total backlog across all lanes.
	Depth(ctx context.Context, queue string, priorities int) (int64, error)

	// LaneDepths returns the backlog of each lane, indexed by priority.
	LaneDepths(ctx context.Context, queue string, priorities int) ([]int64, error)

	// Peek returns up to max raw entries from one lane without removing them.
	Peek(ctx context.Context, queue string, priority, max int) ([][]byte, error)

	// Paused reports whether workers may dequeue from the queue.
	Paused(ctx context.Context, queue string) (bool, error)

	// SetPaused flips the queue's paused flag.
	SetPaused(ctx context.Context, queue string, paused bool) error
}

// InFlight is the visibility-lease contract: an ordered set of claimed
// jobs keyed by their absolute lease deadline.
type InFlight interface {
	// MarkInFlight records a claimed job with the given lease deadline.
	MarkInFlight(ctx context.Context, queue string, raw []byte, deadline time.Time) error

	// AckInFlight removes a finalized job from the in-flight set.
	AckInFlight(ctx context.Context, queue string, raw []byte) error

	// ExpiredInFlight returns raw entries whose deadline is at or before now.
	// Entries are not removed; the reclaimer removes them as it requeues.
	ExpiredInFlight(ctx context.Context, queue string, now time.Time) ([][]byte, error)

	// ListInFlight returns up to max raw entries ordered by nearest expiry.
	ListInFlight(ctx context.Context, queue string, max int) ([][]byte, error)

	// InFlightDepth returns the number of in-flight entries.
	InFlightDepth(ctx context.Context, queue string) (int64, error)
}

// Dead is the dead-letter list contract: an append-only FIFO overflow
// list per queue, addressable for bulk replay or point operations.
type Dead interface {
	// PushDead appends a serialized dead-letter entry.
	PushDead(ctx context.Context, queue string, raw []byte) error

	// PopDead removes and returns the oldest entry, or nil when empty.
	PopDead(ctx context.Context, queue string) ([]byte, error)

	// DeadDepth returns the dead-letter list length.
	DeadDepth(ctx context.Context, queue string) (int64, error)

	// ListDead returns up to max raw entries, oldest first, without removal.
	ListDead(ctx context.Context, queue string, max int) ([][]byte, error)

	// RemoveDead removes the first entry whose raw text contains match
	// (a job id) and returns it, or nil when nothing matched. A linear
	// scan is acceptable at expected dead-letter sizes.
	RemoveDead(ctx context.Context, queue string, match string) ([]byte, error)
}

// Store composes the full backlog contract. A single backend implements
// all of it.
type Store interface {
	Lanes
	InFlight
	Dead
}
