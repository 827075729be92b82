package model

import "time"

// GenerationResult is the persisted outcome of one generation request.
// JobID is empty for immediate (synchronous) runs.
type GenerationResult struct {
	ID       string
	JobID    string
	TargetID string
	FormID   string
	EntryID  string
	// Submitter fields are pulled from the form payload when present.
	SubmitterName  string
	SubmitterEmail string
	Provider       string
	Model          string
	Text           string
	Chunks         int
	TokensUsed     int
	StopReason     string
	Partial        bool
	CreatedAt      time.Time
}
