package scheduler

import "time"

// SweepTask identifies which sweep an EventBridge invocation should run.
type SweepTask string

const (
	// SweepRecurringTasks spawns tasks from due recurrence rules.
	SweepRecurringTasks SweepTask = "recurring_tasks"
	// SweepReportSchedules runs due report schedules.
	SweepReportSchedules SweepTask = "report_schedules"
	// SweepClientArchive runs both lifecycle archive sweeps.
	SweepClientArchive SweepTask = "client_archive"
)

// SweepPayload is the JSON payload EventBridge rules deliver to the worker.
// ReferenceTime overrides the wall clock for backfills and tests.
type SweepPayload struct {
	Task          SweepTask  `json:"task"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
