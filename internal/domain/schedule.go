package domain

import "time"

// OpportunityScore is the composite score attached to an admitted opportunity.
type OpportunityScore struct {
	TotalScore float64 `json:"totalScore"`
	Priority   int     `json:"priority"`
}

// ScheduledEntry is an opportunity waiting in the scheduling queue.
type ScheduledEntry struct {
	Opportunity Opportunity      `json:"opportunity"`
	Score       OpportunityScore `json:"score"`
	EnqueuedAt  time.Time        `json:"enqueuedAt"`
	RetryCount  int              `json:"retryCount"`
}

// QueueStats summarises the scheduling queue.
type QueueStats struct {
	TotalItems          int           `json:"totalItems"`
	HighPriorityItems   int           `json:"highPriorityItems"`
	MediumPriorityItems int           `json:"mediumPriorityItems"`
	LowPriorityItems    int           `json:"lowPriorityItems"`
	OldestItemAge       time.Duration `json:"oldestItemAgeNs"`
	AverageScore        float64       `json:"averageScore"`
}

// ExecutionPayload is published on the "opportunity-execute" channel when the
// queue drain dispatches an entry.
type ExecutionPayload struct {
	Opportunity Opportunity      `json:"opportunity"`
	Score       OpportunityScore `json:"score"`
	Timestamp   int64            `json:"timestamp"`
	RetryCount  int              `json:"retryCount"`
}
