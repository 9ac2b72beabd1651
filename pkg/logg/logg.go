package logg

// Structured log field keys shared by every layer.
const (
	Layer     = "layer"
	Operation = "op"
	AttemptID = "attempt_id"
	TaskID    = "task_id"
	EmailID   = "email_id"
	URL       = "url"
	Selector  = "selector"
	Action    = "action"
	Strategy  = "strategy"
	Frame     = "frame"
	Provider  = "provider"
)
