package taskname

const (
	// Post tasks
	PostPublish = "post:publish"
	PostSync    = "post:sync"

	// Analytics tasks
	AnalyticsCollect = "analytics:collect"
)
