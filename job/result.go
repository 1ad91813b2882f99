package job

// Outcome classifies one processor invocation.
type Outcome int

const (
	// OutcomeSuccess means the job's effect was applied (or had already
	// been applied and the idempotency guard short-circuited).
	OutcomeSuccess Outcome = iota
	// OutcomeSkipNotFound means the job's target does not exist (UPDATE or
	// DELETE of a missing natural key) or a CREATE target already exists.
	OutcomeSkipNotFound
	// OutcomeSkipInvalid means the payload failed validation. Never retried.
	OutcomeSkipInvalid
	// OutcomeRetry means a transient fault occurred; the worker's retry
	// machinery should engage.
	OutcomeRetry
)

// Result is the contract between a processor and the worker loop.
// Processors return it; they never signal control flow by mutating job
// state or by panicking.
type Result struct {
	Outcome Outcome
	// Reason explains a skip, for the status record and callback.
	Reason string
	// Err is the underlying fault on the retry path.
	Err error
}

// Success returns a successful Result.
func Success() Result {
	return Result{Outcome: OutcomeSuccess}
}

// NotFoundSkip returns a terminal skip for a missing (or, for CREATE,
// already-existing) natural key.
func NotFoundSkip(reason string) Result {
	return Result{Outcome: OutcomeSkipNotFound, Reason: reason}
}

// InvalidSkip returns a terminal skip for a validation failure.
func InvalidSkip(reason string) Result {
	return Result{Outcome: OutcomeSkipInvalid, Reason: reason}
}

// RetryableFailure returns a Result that engages the retry machinery.
func RetryableFailure(err error) Result {
	return Result{Outcome: OutcomeRetry, Err: err}
}

// IsSkip reports whether the result is a terminal skip of either flavor.
func (r Result) IsSkip() bool {
	return r.Outcome == OutcomeSkipNotFound || r.Outcome == OutcomeSkipInvalid
}

// IsRetry reports whether the result should engage retries.
func (r Result) IsRetry() bool {
	return r.Outcome == OutcomeRetry
}

// ErrorMessage returns the text recorded on the status record: the skip
// reason, the fault message, or "".
func (r Result) ErrorMessage() string {
	if r.Reason != "" {
		return r.Reason
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}
