package models

import "time"

// Suggestion is AI-generated resolution text attached to an issue. Suggestions
// are never modified once stored.
type Suggestion struct {
	ID         string    `json:"id"`
	IssueID    string    `json:"issueId"`
	Suggestion string    `json:"suggestion"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
