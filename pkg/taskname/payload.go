package taskname

// PostPayload addresses a post from a background task. ScheduledAt pins a
// publish task to the schedule it was enqueued for; a rescheduled post
// ignores stale tasks.
type PostPayload struct {
	OrganizationID string `json:"organization_id"`
	PostID         string `json:"post_id"`
	ScheduledAt    int64  `json:"scheduled_at,omitempty"`
}
