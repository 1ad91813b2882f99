// Package dlq provides the dead-letter queue for transactions that have
// exhausted their retry budget, hit the deadletter admission policy, or
// failed their error callback. It supports inspection, bulk replay, and
// point retry.
//
// When a job fails terminally the worker calls [Service.Send] to move it
// into the dead list. The original payload, the final error message, the
// attempt count, and the callback routing are preserved.
//
// # Replay
//
// [Service.Replay] drains entries back onto the queue's lowest-priority
// lane, oldest first, so bulk replay never starves live traffic.
// [Service.Retry] targets one entry by job id and re-admits it at top
// priority through normal admission control. Both rebuild the job with
// its original id so status polling stays continuous.
package dlq
