package types

import "time"

// RecurringTaskRule is a template that periodically spawns concrete Tasks.
// Exactly one of DayOfWeek/DayOfMonth is semantically active: DayOfWeek for
// weekly rules, DayOfMonth for monthly/quarterly/semiannual rules. NextRunAt
// advances monotonically each time the rule is processed.
type RecurringTaskRule struct {
	ID       string `json:"id" db:"id"`
	AgencyID string `json:"agency_id" db:"agency_id"`

	// Template fields copied verbatim into spawned tasks.
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	Category       string     `json:"category" db:"category"`
	Priority       string     `json:"priority" db:"priority"`
	EstimatedHours float64    `json:"estimated_hours" db:"estimated_hours"`
	ProofTemplate  string     `json:"proof_template" db:"proof_template"`
	AssigneeID     string     `json:"assignee_id" db:"assignee_id"`
	ClientID       *string    `json:"client_id,omitempty" db:"client_id"`
	DefaultStatus  TaskStatus `json:"default_status" db:"default_status"`

	// Cadence.
	Frequency  Frequency `json:"frequency" db:"frequency"`
	DayOfWeek  *int      `json:"day_of_week,omitempty" db:"day_of_week"`    // 0-6, weekly only
	DayOfMonth *int      `json:"day_of_month,omitempty" db:"day_of_month"`  // 1-31, month-based only
	NextRunAt  time.Time `json:"next_run_at" db:"next_run_at"`
	IsActive   bool      `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProofAttachment is a single entry in a task's ordered proof list.
type ProofAttachment struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Task is a unit of work, created directly by an actor or spawned by a due
// RecurringTaskRule. ApprovalNotifyUserIDs is non-empty only while status is
// needs_approval; every transition away from needs_approval clears it.
type Task struct {
	ID       string  `json:"id" db:"id"`
	AgencyID string  `json:"agency_id" db:"agency_id"`
	ClientID *string `json:"client_id,omitempty" db:"client_id"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`
	Notes       string `json:"notes" db:"notes"`
	Category    string `json:"category" db:"category"`

	Status         TaskStatus        `json:"status" db:"status"`
	DueDate        time.Time         `json:"due_date" db:"due_date"`
	AssigneeID     string            `json:"assignee_id" db:"assignee_id"`
	CreatorID      string            `json:"creator_id" db:"creator_id"`
	Priority       string            `json:"priority" db:"priority"`
	EstimatedHours float64           `json:"estimated_hours" db:"estimated_hours"`
	// ProofTemplate describes the expected proof for this task. Copied
	// verbatim from the rule on spawn; Proof holds the actual uploads.
	ProofTemplate string            `json:"proof_template,omitempty" db:"proof_template"`
	Proof         []ProofAttachment `json:"proof,omitempty" db:"proof"`

	ApprovalNotifyUserIDs []string `json:"approval_notify_user_ids,omitempty" db:"approval_notify_user_ids"`

	// RuleID links a spawned task back to its template rule.
	RuleID *string `json:"rule_id,omitempty" db:"rule_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ReportSchedule is a per-client configuration that periodically generates
// and emails a report. Recipients is never empty while IsActive is true.
type ReportSchedule struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`

	Frequency    Frequency `json:"frequency" db:"frequency"`
	DayOfWeek    *int      `json:"day_of_week,omitempty" db:"day_of_week"`
	DayOfMonth   *int      `json:"day_of_month,omitempty" db:"day_of_month"`
	TimeOfDay    string    `json:"time_of_day" db:"time_of_day"` // "HH:MM", 24h
	Recipients   []string  `json:"recipients" db:"recipients"`
	EmailSubject string    `json:"email_subject,omitempty" db:"email_subject"`

	IsActive  bool       `json:"is_active" db:"is_active"`
	NextRunAt time.Time  `json:"next_run_at" db:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty" db:"last_run_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Client is the lifecycle-relevant projection of a client account.
// Transitions to archived are driven only by the lifecycle archiver.
type Client struct {
	ID       string `json:"id" db:"id"`
	AgencyID string `json:"agency_id" db:"agency_id"`
	Name     string `json:"name" db:"name"`

	Status ClientStatus `json:"status" db:"status"`

	// CanceledEndDate marks the date service ends after a cancellation.
	CanceledEndDate *time.Time `json:"canceled_end_date,omitempty" db:"canceled_end_date"`
	// ScheduledArchiveAt is an explicit future archive instant, independent
	// of cancellation.
	ScheduledArchiveAt *time.Time `json:"scheduled_archive_at,omitempty" db:"scheduled_archive_at"`

	// PrimaryContactID is the client's primary account holder.
	PrimaryContactID string `json:"primary_contact_id" db:"primary_contact_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Notification is an in-app notification row created by the dispatcher.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	AgencyID  string    `json:"agency_id" db:"agency_id"`
	EventType EventType `json:"event_type" db:"event_type"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`

	TaskID   *string `json:"task_id,omitempty" db:"task_id"`
	ClientID *string `json:"client_id,omitempty" db:"client_id"`

	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// SendInput defines the contract for a single outbound email.
type SendInput struct {
	To       string
	From     SenderIdentity
	Subject  string
	BodyText string
	BodyHTML string
	// ReferenceID correlates the send with the triggering entity for logs.
	ReferenceID string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}

// JobRun tracks a single scheduled sweep execution for operational visibility.
type JobRun struct {
	ID         int64      `json:"id" db:"id"`
	JobType    string     `json:"job_type" db:"job_type"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
	Status     string     `json:"status" db:"status"`
	ItemsCount int        `json:"items_count" db:"items_count"`
	Error      string     `json:"error,omitempty" db:"error"`
}
