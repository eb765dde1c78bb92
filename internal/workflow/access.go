package workflow

import (
	"slices"

	"agencydesk/internal/types"
)

// TaskAccess bundles the relationship facts the capability predicate needs
// beyond the actor and the task itself. The workflow service resolves these
// from the store; tests construct them directly.
type TaskAccess struct {
	// ClientMemberIDs are the active members linked to the task's client.
	ClientMemberIDs []string
	// PrimaryContactID is the owning client's primary account holder.
	PrimaryContactID string
}

// CanPerform is the capability predicate: a boolean access check based on
// the actor's relationship to the task, not solely their role label.
//
// An actor may act on a task if they are a platform administrator, a member
// of the task's owning agency, an active member linked to the task's client,
// or the owning client's primary account holder. A specialist is restricted
// to tasks where they are the assignee, and even then only the status-patch
// operation is permitted.
func CanPerform(actor types.Actor, task *types.Task, op types.TaskOperation, access TaskAccess) bool {
	if actor.Role == types.RoleSpecialist {
		return op == types.OpStatusPatch && task.AssigneeID == actor.ID
	}

	if actor.IsPlatformAdmin() {
		return true
	}

	if actor.Role == types.RoleAgencyMember && actor.AgencyID == task.AgencyID {
		return true
	}

	if task.ClientID != nil {
		if slices.Contains(access.ClientMemberIDs, actor.ID) {
			return true
		}
		if access.PrimaryContactID != "" && actor.ID == access.PrimaryContactID {
			return true
		}
	}

	return false
}
