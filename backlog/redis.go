package backlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/siga-labs/txq/job"
)

// Compile-time interface check.
var _ Store = (*Redis)(nil)

// RedisOption configures the Redis backlog.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.keys = keys{prefix: prefix} }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// Redis implements Store on Redis lists, a string flag and a sorted set.
// Enqueue is durable: the backing store is external and persistent, so
// queued work survives a process restart. The caller owns the client
// lifecycle.
type Redis struct {
	client goredis.Cmdable
	keys   keys
	logger *slog.Logger
}

// NewRedis creates a Redis-backed backlog store.
func NewRedis(client goredis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		keys:   keys{prefix: DefaultKeyPrefix},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Ping verifies the Redis connection is alive.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ── Lanes ──

// Enqueue appends the job to the lane for its (clamped) priority.
func (r *Redis) Enqueue(ctx context.Context, queue string, j *job.Job) error {
	raw, err := j.Encode()
	if err != nil {
		return fmt.Errorf("txq/backlog: encode job %s: %w", j.ID, err)
	}
	return r.EnqueueRaw(ctx, queue, job.ClampPriority(j.Priority), raw)
}

// EnqueueRaw appends an already-serialized job to the given lane.
func (r *Redis) EnqueueRaw(ctx context.Context, queue string, priority int, raw []byte) error {
	if err := r.client.RPush(ctx, r.keys.lane(queue, priority), raw).Err(); err != nil {
		return fmt.Errorf("txq/backlog: enqueue %s p%d: %w", queue, priority, err)
	}
	return nil
}

// TryDequeue pops the first available job, scanning lanes high to low.
func (r *Redis) TryDequeue(ctx context.Context, queue string, priorities int) (*job.Job, []byte, error) {
	for p := 0; p < priorities; p++ {
		raw, err := r.client.LPop(ctx, r.keys.lane(queue, p)).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			return nil, nil, fmt.Errorf("txq/backlog: dequeue %s p%d: %w", queue, p, err)
		}

		j, decErr := job.Decode(raw)
		if decErr != nil {
			// Garbage in a lane is discarded rather than looped on.
			r.logger.Warn("discarding corrupt backlog entry",
				slog.String("queue", queue),
				slog.Int("priority", p),
				slog.String("error", decErr.Error()),
			)
			continue
		}
		return j, raw, nil
	}
	return nil, nil, nil
}

// Depth sums lane lengths across all priorities.
func (r *Redis) Depth(ctx context.Context, queue string, priorities int) (int64, error) {
	depths, err := r.LaneDepths(ctx, queue, priorities)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, d := range depths {
		total += d
	}
	return total, nil
}

// LaneDepths returns each lane's length, indexed by priority.
func (r *Redis) LaneDepths(ctx context.Context, queue string, priorities int) ([]int64, error) {
	depths := make([]int64, priorities)
	for p := 0; p < priorities; p++ {
		n, err := r.client.LLen(ctx, r.keys.lane(queue, p)).Result()
		if err != nil {
			return nil, fmt.Errorf("txq/backlog: lane depth %s p%d: %w", queue, p, err)
		}
		depths[p] = n
	}
	return depths, nil
}

// Peek returns up to max raw entries from one lane without removal.
func (r *Redis) Peek(ctx context.Context, queue string, priority, max int) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, r.keys.lane(queue, priority), 0, int64(max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("txq/backlog: peek %s p%d: %w", queue, priority, err)
	}
	return toBytes(vals), nil
}

// Paused reports whether the queue's paused flag is set.
func (r *Redis) Paused(ctx context.Context, queue string) (bool, error) {
	val, err := r.client.Get(ctx, r.keys.paused(queue)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("txq/backlog: paused %s: %w", queue, err)
	}
	return val == "1", nil
}

// SetPaused flips the queue's paused flag.
func (r *Redis) SetPaused(ctx context.Context, queue string, paused bool) error {
	val := "0"
	if paused {
		val = "1"
	}
	if err := r.client.Set(ctx, r.keys.paused(queue), val, 0).Err(); err != nil {
		return fmt.Errorf("txq/backlog: set paused %s: %w", queue, err)
	}
	return nil
}

// ── InFlight ──

// MarkInFlight records a claimed job with its lease deadline.
func (r *Redis) MarkInFlight(ctx context.Context, queue string, raw []byte, deadline time.Time) error {
	z := goredis.Z{Score: float64(deadline.UnixMilli()), Member: raw}
	if err := r.client.ZAdd(ctx, r.keys.inflight(queue), z).Err(); err != nil {
		return fmt.Errorf("txq/backlog: mark in-flight %s: %w", queue, err)
	}
	return nil
}

// AckInFlight removes a finalized job from the in-flight set.
func (r *Redis) AckInFlight(ctx context.Context, queue string, raw []byte) error {
	if err := r.client.ZRem(ctx, r.keys.inflight(queue), raw).Err(); err != nil {
		return fmt.Errorf("txq/backlog: ack in-flight %s: %w", queue, err)
	}
	return nil
}

// ExpiredInFlight returns entries whose lease deadline has passed.
func (r *Redis) ExpiredInFlight(ctx context.Context, queue string, now time.Time) ([][]byte, error) {
	rng := &goredis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli())}
	vals, err := r.client.ZRangeByScore(ctx, r.keys.inflight(queue), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("txq/backlog: expired in-flight %s: %w", queue, err)
	}
	return toBytes(vals), nil
}

// ListInFlight returns up to max entries ordered by nearest expiry.
func (r *Redis) ListInFlight(ctx context.Context, queue string, max int) ([][]byte, error) {
	vals, err := r.client.ZRange(ctx, r.keys.inflight(queue), 0, int64(max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("txq/backlog: list in-flight %s: %w", queue, err)
	}
	return toBytes(vals), nil
}

// InFlightDepth returns the in-flight set cardinality.
func (r *Redis) InFlightDepth(ctx context.Context, queue string) (int64, error) {
	n, err := r.client.ZCard(ctx, r.keys.inflight(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("txq/backlog: in-flight depth %s: %w", queue, err)
	}
	return n, nil
}

// ── Dead ──

// PushDead appends a serialized dead-letter entry.
func (r *Redis) PushDead(ctx context.Context, queue string, raw []byte) error {
	if err := r.client.RPush(ctx, r.keys.dead(queue), raw).Err(); err != nil {
		return fmt.Errorf("txq/backlog: push dead %s: %w", queue, err)
	}
	return nil
}

// PopDead removes and returns the oldest dead-letter entry.
func (r *Redis) PopDead(ctx context.Context, queue string) ([]byte, error) {
	raw, err := r.client.LPop(ctx, r.keys.dead(queue)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("txq/backlog: pop dead %s: %w", queue, err)
	}
	return raw, nil
}

// DeadDepth returns the dead-letter list length.
func (r *Redis) DeadDepth(ctx context.Context, queue string) (int64, error) {
	n, err := r.client.LLen(ctx, r.keys.dead(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("txq/backlog: dead depth %s: %w", queue, err)
	}
	return n, nil
}

// ListDead returns up to max entries, oldest first, without removal.
func (r *Redis) ListDead(ctx context.Context, queue string, max int) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, r.keys.dead(queue), 0, int64(max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("txq/backlog: list dead %s: %w", queue, err)
	}
	return toBytes(vals), nil
}

// RemoveDead removes and returns the first entry containing match.
func (r *Redis) RemoveDead(ctx context.Context, queue string, match string) ([]byte, error) {
	key := r.keys.dead(queue)
	vals, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("txq/backlog: remove dead %s: %w", queue, err)
	}
	for _, v := range vals {
		if !containsID(v, match) {
			continue
		}
		if err := r.client.LRem(ctx, key, 1, v).Err(); err != nil {
			return nil, fmt.Errorf("txq/backlog: remove dead %s: %w", queue, err)
		}
		return []byte(v), nil
	}
	return nil, nil
}

func toBytes(vals []string) [][]byte {
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out
}
