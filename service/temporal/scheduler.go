package temporal

import (
	"context"
	"time"
)

// Scheduler manages the Temporal schedule that drives recurring ledger
// audits. Each deployment runs exactly one audit schedule, which triggers
// the AuditLedgerWorkflow.
type Scheduler interface {
	// CreateAuditSchedule creates the recurring audit schedule.
	// The schedule will trigger the AuditLedgerWorkflow on the given interval.
	CreateAuditSchedule(ctx context.Context, interval time.Duration) error

	// UpsertAuditSchedule creates the audit schedule or, if it already
	// exists, updates its interval.
	UpsertAuditSchedule(ctx context.Context, interval time.Duration) error

	// DeleteAuditSchedule deletes the audit schedule.
	// This stops periodic audits from running.
	DeleteAuditSchedule(ctx context.Context) error

	// DescribeAuditSchedule returns the current state of the audit schedule.
	DescribeAuditSchedule(ctx context.Context) (*AuditScheduleStatus, error)

	// PauseAuditSchedule pauses the audit schedule without deleting it.
	PauseAuditSchedule(ctx context.Context, note string) error

	// ResumeAuditSchedule resumes a paused audit schedule.
	ResumeAuditSchedule(ctx context.Context, note string) error

	// TriggerAudit runs one audit immediately, outside the schedule.
	TriggerAudit(ctx context.Context) error
}

// AuditScheduleStatus summarizes the audit schedule for operator tooling.
type AuditScheduleStatus struct {
	ScheduleID  string        `json:"schedule_id"`
	Paused      bool          `json:"paused"`
	Note        string        `json:"note,omitempty"`
	Interval    time.Duration `json:"interval"`
	NextRunTime *time.Time    `json:"next_run_time,omitempty"`
	RecentRuns  []time.Time   `json:"recent_runs,omitempty"`
}

// auditScheduleID is the fixed Temporal schedule ID for the recurring
// ledger audit.
const auditScheduleID = "audit-ledger"
