package types

// Frequency defines the cadence of a recurrence rule or report schedule.
// Recurring task rules use weekly/monthly/quarterly/semiannual; report
// schedules use weekly/biweekly/monthly. Both share this type so the
// calendar arithmetic has a single vocabulary.
type Frequency string

const (
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiweekly   Frequency = "biweekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiannual Frequency = "semiannual"
)

// Valid reports whether f is one of the known cadences.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencySemiannual:
		return true
	}
	return false
}

// TaskStatus represents the workflow state of a task.
type TaskStatus string

const (
	TaskStatusTodo          TaskStatus = "todo"
	TaskStatusInProgress    TaskStatus = "in_progress"
	TaskStatusReview        TaskStatus = "review"
	TaskStatusNeedsApproval TaskStatus = "needs_approval"
	TaskStatusDone          TaskStatus = "done"
)

// Valid reports whether s is one of the five legal task statuses.
// The workflow accepts any legal value directly; linear advancement is a UI
// convenience, not an engine constraint.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview,
		TaskStatusNeedsApproval, TaskStatusDone:
		return true
	}
	return false
}

// ClientStatus represents the lifecycle state of a client account.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "active"
	ClientStatusPaused   ClientStatus = "paused"
	ClientStatusCanceled ClientStatus = "canceled"
	ClientStatusArchived ClientStatus = "archived"
)

// ReportStatus is the stored state of a generated report. The "scheduled"
// presentation state is derived, never persisted.
type ReportStatus string

const (
	ReportStatusDraft     ReportStatus = "draft"
	ReportStatusScheduled ReportStatus = "scheduled"
	ReportStatusSent      ReportStatus = "sent"
)

// ActorRole defines the authorization level of a resolved actor.
// Authentication itself happens upstream; the engine only consumes the
// resolved identity.
type ActorRole string

const (
	// RoleAdmin is a platform administrator with access to every task.
	RoleAdmin ActorRole = "admin"
	// RoleAgencyMember is a member of the agency that owns the task.
	RoleAgencyMember ActorRole = "agency_member"
	// RoleClientMember is an active member linked to the task's client.
	RoleClientMember ActorRole = "client_member"
	// RoleSpecialist may only patch the status of tasks assigned to them.
	RoleSpecialist ActorRole = "specialist"
)

// TaskOperation identifies the kind of mutation an actor is attempting,
// used by the capability predicate.
type TaskOperation string

const (
	OpStatusPatch TaskOperation = "status_patch"
	OpEditDetails TaskOperation = "edit_details"
	OpDeleteTask  TaskOperation = "delete"
)

// EventType identifies the kind of notification event the dispatcher fans out.
type EventType string

const (
	EventApprovalRequested EventType = "approval_requested"
	EventTaskCompleted     EventType = "task_completed"
	EventReportSent        EventType = "report_sent"
	EventClientArchived    EventType = "client_archived"
)
