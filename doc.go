// Package txq provides a transactional job queue for asynchronous
// entity mutations: prioritized per-queue backlogs, admission control
// with backpressure, resizable worker pools, requeue-based retries,
// visibility-timeout reclaim, dead-lettering with replay, and signed
// outcome callbacks.
//
// txq is designed as a library. Import it, point it at Redis and
// Postgres, declare queues, and register processors for your entity
// kinds; the engine package wires everything together and cmd/txqd runs
// it as a service.
//
// # Architecture
//
// Each subsystem lives in its own package with its own store contract:
// backlog (priority lanes, in-flight leases, dead lists), status
// (per-transaction lifecycle records), queue (admission), worker
// (execution), dlq, reclaim, callback, and processor. A single Redis
// backend implements the backlog and status contracts; the academic
// entity store runs on Postgres.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers ("tx_", "dlq_", "wkr_").
package txq
