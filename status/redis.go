package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
)

var _ Store = (*Redis)(nil)

// DefaultKeyPrefix is prepended to transaction ids to form record keys.
const DefaultKeyPrefix = "tx:"

// RedisOption configures the Redis status store.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the default record key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithTTL sets an expiry on finalized records. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// Redis stores one JSON blob per transaction under "tx:{id}".
type Redis struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed status store.
func NewRedis(client goredis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: DefaultKeyPrefix}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) key(txID id.ID) string { return r.prefix + txID.String() }

func (r *Redis) Add(ctx context.Context, queue string, j *job.Job) error {
	return r.put(ctx, newRecord(queue, j), false)
}

func (r *Redis) Get(ctx context.Context, txID id.ID) (*Record, error) {
	raw, err := r.client.Get(ctx, r.key(txID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("txq/status: get %s: %w", txID, err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("txq/status: decode %s: %w", txID, err)
	}
	return rec, nil
}

func (r *Redis) UpdateState(ctx context.Context, txID id.ID, state job.State, attempt int, errMsg string) error {
	rec, err := r.Get(ctx, txID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		rec = &Record{ID: txID, CreatedAt: time.Now().UTC()}
	}
	rec.State = state
	rec.Attempt = attempt
	rec.LastError = errMsg
	rec.UpdatedAt = time.Now().UTC()
	return r.put(ctx, rec, state.Terminal())
}

func (r *Redis) MarkFinalized(ctx context.Context, txID id.ID, at time.Time) error {
	rec, err := r.Get(ctx, txID)
	if err != nil {
		return err
	}
	at = at.UTC()
	rec.FinalizedAt = &at
	rec.UpdatedAt = time.Now().UTC()
	return r.put(ctx, rec, true)
}

func (r *Redis) put(ctx context.Context, rec *Record, terminal bool) error {
	raw, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("txq/status: encode %s: %w", rec.ID, err)
	}
	var ttl time.Duration
	if terminal {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, r.key(rec.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("txq/status: put %s: %w", rec.ID, err)
	}
	return nil
}
