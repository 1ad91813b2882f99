package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued     = "job.enqueued"
	ActionJobStarted      = "job.started"
	ActionJobCompleted    = "job.completed"
	ActionJobSkipped      = "job.skipped"
	ActionJobRetrying     = "job.retrying"
	ActionJobDeadLettered = "job.dead_lettered"
)

// CategoryJob groups every job lifecycle action.
const CategoryJob = "txq.job"

// ResourceJob is the Resource field of every event this package emits.
const ResourceJob = "transaction"

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobSkipped,
		ActionJobRetrying,
		ActionJobDeadLettered,
	}
}
