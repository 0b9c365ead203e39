// Package events defines event subjects and wires the configured event bus.
package events

// Background task lifecycle subjects. The task id is appended as the last token,
// e.g. "task.progress.<id>", so subscribers can watch a single task.
const (
	TaskStarted   = "task.started"
	TaskProgress  = "task.progress"
	TaskCompleted = "task.completed"
	TaskFailed    = "task.failed"
	TaskCancelled = "task.cancelled"
)

// Report subjects.
const (
	ReportPreviewSaved = "report.preview_saved"
	ReportArchived     = "report.archived"
)

// Roster subjects.
const (
	RosterReloaded = "roster.reloaded"
)

// TaskSubject returns the per-task subject for a lifecycle event type.
func TaskSubject(eventType, taskID string) string {
	return eventType + "." + taskID
}
