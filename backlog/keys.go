package backlog

import "strconv"

// Redis key naming for queue state. All keys share a configurable prefix
// (default "q:") so several deployments can cohabit one Redis.
//
//	q:{queue}:p:{n}      list    priority lane n, FIFO
//	q:{queue}:paused     string  "1" when paused
//	q:{queue}:inflight   zset    score = lease deadline, unix ms
//	q:{queue}:dlq        list    dead-letter entries, FIFO

// DefaultKeyPrefix is used when no prefix is configured.
const DefaultKeyPrefix = "q:"

type keys struct{ prefix string }

func (k keys) lane(queue string, priority int) string {
	return k.prefix + queue + ":p:" + strconv.Itoa(priority)
}

func (k keys) paused(queue string) string { return k.prefix + queue + ":paused" }

func (k keys) inflight(queue string) string { return k.prefix + queue + ":inflight" }

func (k keys) dead(queue string) string { return k.prefix + queue + ":dlq" }
