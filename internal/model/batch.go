package model

import "time"

// Outcome is the single terminal result of one work item.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
)

// BatchProgress holds the orchestrator's counters. Completed always equals
// Successful + Failed + Duplicates once an item's bookkeeping has run.
type BatchProgress struct {
	Total                  int           `json:"total"`
	Completed              int           `json:"completed"`
	Successful             int           `json:"successful"`
	Failed                 int           `json:"failed"`
	Duplicates             int           `json:"duplicates"`
	CurrentItem            string        `json:"current_item,omitempty"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
}

// SuccessRate is Successful/Completed in percent.
func (p BatchProgress) SuccessRate() float64 {
	if p.Completed == 0 {
		return 0
	}
	return float64(p.Successful) / float64(p.Completed) * 100
}

// FailedItem identifies a failed work item and why it failed.
type FailedItem struct {
	Query string `json:"query"`
	Name  string `json:"name"`
	Brand string `json:"brand,omitempty"`
	Error string `json:"error"`
}

// DuplicateItem identifies a work item whose record already existed.
type DuplicateItem struct {
	Query     string `json:"query"`
	Name      string `json:"name"`
	Brand     string `json:"brand,omitempty"`
	MatchedID string `json:"matched_id,omitempty"`
}

// BatchResult is the full accounting of one batch run:
// len(Successful)+len(Failed)+len(Duplicates) == TotalProcessed.
type BatchResult struct {
	Successful     []StoredSpirit  `json:"successful"`
	Failed         []FailedItem    `json:"failed"`
	Duplicates     []DuplicateItem `json:"duplicates"`
	TotalProcessed int             `json:"total_processed"`
	Duration       time.Duration   `json:"duration"`
}
