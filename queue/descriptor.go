package queue

import (
	"sync"
	"time"
)

// RejectPolicy decides what happens to a job admitted against a full
// queue.
type RejectPolicy string

const (
	// PolicyReject refuses the job with a QueueFullError.
	PolicyReject RejectPolicy = "reject"
	// PolicyDeadLetter diverts the job straight to the dead-letter list.
	PolicyDeadLetter RejectPolicy = "deadletter"
	// PolicyBlock makes the producer wait for room.
	PolicyBlock RejectPolicy = "block"
)

// Balanced is the pseudo queue name that spreads jobs round-robin over
// every registered queue except "default".
const Balanced = "balanced"

// DefaultQueue receives jobs when no queue is requested and nothing but
// the default is registered.
const DefaultQueue = "default"

// Descriptor is the declared shape of one queue.
type Descriptor struct {
	Name         string        `json:"name"`
	Workers      int           `json:"workers"`
	Priorities   int           `json:"priorities"`
	MaxInFlight  int           `json:"maxInFlight"`
	MaxQueued    int64         `json:"maxQueued"`
	RejectPolicy RejectPolicy  `json:"rejectPolicy"`
	MaxRetries   int           `json:"maxRetries"`
	BaseBackoff  time.Duration `json:"baseBackoff"`
	RateLimit    float64       `json:"rateLimit"`
	RateBurst    int           `json:"rateBurst"`
	Paused       bool          `json:"paused"`
}

// Normalize fills zero fields with defaults and returns the descriptor.
func (d Descriptor) Normalize() Descriptor {
	if d.Workers <= 0 {
		d.Workers = 1
	}
	if d.Priorities <= 0 {
		d.Priorities = 3
	}
	if d.MaxInFlight <= 0 {
		d.MaxInFlight = 50
	}
	if d.RejectPolicy == "" {
		d.RejectPolicy = PolicyReject
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = 5
	}
	if d.BaseBackoff <= 0 {
		d.BaseBackoff = 300 * time.Millisecond
	}
	return d
}

// Registry is the thread-safe set of declared queues.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{descs: make(map[string]Descriptor)}
}

// Register adds or replaces a queue declaration. The stored descriptor
// is normalized.
func (r *Registry) Register(d Descriptor) Descriptor {
	d = d.Normalize()
	r.mu.Lock()
	r.descs[d.Name] = d
	r.mu.Unlock()
	return d
}

// Get returns the descriptor for name. Unknown queues get a normalized
// zero descriptor so producers can target queues declared elsewhere.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	d, ok := r.descs[name]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{Name: name}.Normalize(), false
	}
	return d, true
}

// Remove deletes a queue declaration.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.descs, name)
	r.mu.Unlock()
}

// Names returns all registered queue names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descs))
	for name := range r.descs {
		names = append(names, name)
	}
	return names
}

// List returns all registered descriptors, unordered.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	return out
}
