package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// CreateAuditSchedule creates the recurring Temporal schedule that runs the
// ledger audit.
func (c *Client) CreateAuditSchedule(ctx context.Context, interval time.Duration) error {
	c.logger.Debug("creating audit schedule",
		"schedule_id", auditScheduleID,
		"interval", interval,
	)

	// Create schedule spec
	scheduleSpec := client.ScheduleSpec{
		Intervals: []client.ScheduleIntervalSpec{
			{
				Every: interval,
			},
		},
	}

	// Create workflow action - this will execute the AuditLedgerWorkflow
	workflowAction := client.ScheduleWorkflowAction{
		ID:        "audit-ledger-run",
		Workflow:  "AuditLedgerWorkflow",
		TaskQueue: c.taskQueue,
		Args:      []interface{}{AuditLedgerInput{}},
	}

	// Create the schedule
	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:     auditScheduleID,
		Spec:   scheduleSpec,
		Action: &workflowAction,
		Memo: map[string]interface{}{
			"created_by": "drugledger",
			"purpose":    "periodic ledger integrity audit",
		},
	})

	if err != nil {
		c.logger.Error("failed to create schedule",
			"schedule_id", auditScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", auditScheduleID, err)
	}

	c.logger.Info("audit schedule created",
		"schedule_id", auditScheduleID,
		"interval", interval,
	)

	return nil
}

// UpsertAuditSchedule creates the audit schedule or updates its interval.
// If the schedule already exists, only the interval is changed. Otherwise,
// a new schedule is created.
func (c *Client) UpsertAuditSchedule(ctx context.Context, interval time.Duration) error {
	c.logger.Debug("upserting audit schedule",
		"schedule_id", auditScheduleID,
		"interval", interval,
	)

	// Try to get existing schedule
	handle := c.client.ScheduleClient().GetHandle(ctx, auditScheduleID)
	desc, err := handle.Describe(ctx)

	if err != nil {
		// Schedule doesn't exist or error getting it - create new one
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", auditScheduleID,
			"error", err,
		)
		return c.CreateAuditSchedule(ctx, interval)
	}

	// Schedule exists - update the interval
	c.logger.Debug("schedule exists, updating interval",
		"schedule_id", auditScheduleID,
		"old_interval", desc.Schedule.Spec.Intervals[0].Every,
		"new_interval", interval,
	)

	// Update the schedule spec with new interval
	err = handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			// Update the interval
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})

	if err != nil {
		c.logger.Error("failed to update schedule",
			"schedule_id", auditScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", auditScheduleID, err)
	}

	c.logger.Info("audit schedule updated",
		"schedule_id", auditScheduleID,
		"interval", interval,
	)

	return nil
}

// DeleteAuditSchedule deletes the Temporal schedule for ledger audits.
func (c *Client) DeleteAuditSchedule(ctx context.Context) error {
	c.logger.Debug("deleting audit schedule", "schedule_id", auditScheduleID)

	handle := c.client.ScheduleClient().GetHandle(ctx, auditScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", auditScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", auditScheduleID, err)
	}

	c.logger.Info("audit schedule deleted", "schedule_id", auditScheduleID)

	return nil
}

// DescribeAuditSchedule returns the current state of the audit schedule.
func (c *Client) DescribeAuditSchedule(ctx context.Context) (*AuditScheduleStatus, error) {
	handle := c.client.ScheduleClient().GetHandle(ctx, auditScheduleID)
	desc, err := handle.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe schedule %q: %w", auditScheduleID, err)
	}

	status := &AuditScheduleStatus{
		ScheduleID: auditScheduleID,
	}

	if desc.Schedule.State != nil {
		status.Paused = desc.Schedule.State.Paused
		status.Note = desc.Schedule.State.Note
	}
	if desc.Schedule.Spec != nil && len(desc.Schedule.Spec.Intervals) > 0 {
		status.Interval = desc.Schedule.Spec.Intervals[0].Every
	}
	if len(desc.Info.NextActionTimes) > 0 {
		next := desc.Info.NextActionTimes[0]
		status.NextRunTime = &next
	}
	for _, action := range desc.Info.RecentActions {
		status.RecentRuns = append(status.RecentRuns, action.ActualTime)
	}

	return status, nil
}

// PauseAuditSchedule pauses the audit schedule without deleting it.
func (c *Client) PauseAuditSchedule(ctx context.Context, note string) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, auditScheduleID)
	if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: note}); err != nil {
		return fmt.Errorf("failed to pause schedule %q: %w", auditScheduleID, err)
	}

	c.logger.Info("audit schedule paused", "schedule_id", auditScheduleID, "note", note)
	return nil
}

// ResumeAuditSchedule resumes a paused audit schedule.
func (c *Client) ResumeAuditSchedule(ctx context.Context, note string) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, auditScheduleID)
	if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: note}); err != nil {
		return fmt.Errorf("failed to resume schedule %q: %w", auditScheduleID, err)
	}

	c.logger.Info("audit schedule resumed", "schedule_id", auditScheduleID, "note", note)
	return nil
}

// TriggerAudit runs one audit immediately, outside the schedule's interval.
func (c *Client) TriggerAudit(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, auditScheduleID)
	if err := handle.Trigger(ctx, client.ScheduleTriggerOptions{}); err != nil {
		return fmt.Errorf("failed to trigger audit: %w", err)
	}

	c.logger.Info("audit triggered", "schedule_id", auditScheduleID)
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
