package tracker

import (
	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/models"
)

// CanMutate reports whether actor may update or delete issue. Only the creator
// may; the ADMIN role grants nothing here.
func CanMutate(issue *models.Issue, actor *identity.Identity) bool {
	if issue == nil || actor == nil || actor.UserID == "" {
		return false
	}
	return issue.CreatorID == actor.UserID
}
