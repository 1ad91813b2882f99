package txq

import (
	"errors"
	"fmt"
)

var (
	// Not found errors.
	ErrQueueNotFound       = errors.New("txq: queue not found")
	ErrTransactionNotFound = errors.New("txq: transaction not found")
	ErrDeadEntryNotFound   = errors.New("txq: dead-letter entry not found")

	// Conflict errors.
	ErrQueueExists = errors.New("txq: queue already exists")

	// State errors.
	ErrHostStopped   = errors.New("txq: host is not running")
	ErrUnknownEntity = errors.New("txq: no processor for entity kind")
)

// QueueFullError is returned by admission control when a queue with the
// reject policy is at its backlog cap.
type QueueFullError struct {
	Queue   string
	Backlog int64
	Max     int64
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("txq: queue %q is full (%d/%d)", e.Queue, e.Backlog, e.Max)
}

// IsQueueFull reports whether err is a QueueFullError.
func IsQueueFull(err error) bool {
	var qf *QueueFullError
	return errors.As(err, &qf)
}
