// Package audithook bridges txq job lifecycle events to an audit trail
// backend. Register the Extension on the hook registry and every
// enqueue, start, completion, skip, retry and dead-letter becomes a
// structured audit event through the injected Recorder.
//
// The Recorder interface is defined locally so this package carries no
// dependency on any particular audit store; callers bridge to their
// backend with a RecorderFunc at wiring time.
package audithook
