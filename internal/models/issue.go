package models

import (
	"strings"
	"time"
)

// IssueStatus represents the state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "OPEN"
	IssueStatusInProgress IssueStatus = "IN_PROGRESS"
	IssueStatusResolved   IssueStatus = "RESOLVED"
	IssueStatusClosed     IssueStatus = "CLOSED"
)

// IssueStatuses lists every valid status in lifecycle order.
var IssueStatuses = []IssueStatus{
	IssueStatusOpen,
	IssueStatusInProgress,
	IssueStatusResolved,
	IssueStatusClosed,
}

// ParseIssueStatus matches s case-insensitively against the known statuses and
// returns the canonical upper-case value.
func ParseIssueStatus(s string) (IssueStatus, bool) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, st := range IssueStatuses {
		if string(st) == upper {
			return st, true
		}
	}
	return "", false
}

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "LOW"
	IssuePriorityMedium   IssuePriority = "MEDIUM"
	IssuePriorityHigh     IssuePriority = "HIGH"
	IssuePriorityCritical IssuePriority = "CRITICAL"
)

// IssuePriorities lists every valid priority from lowest to highest.
var IssuePriorities = []IssuePriority{
	IssuePriorityLow,
	IssuePriorityMedium,
	IssuePriorityHigh,
	IssuePriorityCritical,
}

// ParseIssuePriority matches s case-insensitively against the known priorities.
func ParseIssuePriority(s string) (IssuePriority, bool) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, p := range IssuePriorities {
		if string(p) == upper {
			return p, true
		}
	}
	return "", false
}

// Issue is a trackable unit of work. Title, Description and CreatorID never
// change after creation.
type Issue struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      IssueStatus   `json:"status"`
	Priority    IssuePriority `json:"priority,omitempty"`
	CreatorID   string        `json:"creatorId"`
	AssigneeID  string        `json:"assigneeId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// IssuePatch is a sparse set of changes to an issue. Nil fields are left untouched.
type IssuePatch struct {
	Status     *IssueStatus
	Priority   *IssuePriority
	AssigneeID *string
}

// Empty reports whether the patch changes nothing.
func (p IssuePatch) Empty() bool {
	return p.Status == nil && p.Priority == nil && p.AssigneeID == nil
}
