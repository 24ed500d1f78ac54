package main

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/Payal2904/drug-verification-system-sub000/service/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	sdkclient "go.temporal.io/sdk/client"
)

const testAuditScheduleID = "audit-ledger"

func setupTestTemporal(t *testing.T) sdkclient.Client {
	t.Helper()

	// Skip by default - require explicit opt-in
	if os.Getenv("RUN_TEMPORAL_TESTS") == "" {
		t.Skip("Skipping Temporal integration test (set RUN_TEMPORAL_TESTS=1 to enable)")
	}

	temporalHost := os.Getenv("TEST_TEMPORAL_HOST")
	if temporalHost == "" {
		temporalHost = "localhost:7233"
	}

	temporalNamespace := os.Getenv("TEST_TEMPORAL_NAMESPACE")
	if temporalNamespace == "" {
		temporalNamespace = "default"
	}

	temporalClient, err := sdkclient.Dial(sdkclient.Options{
		HostPort:  temporalHost,
		Namespace: temporalNamespace,
	})
	require.NoError(t, err)
	t.Cleanup(func() { temporalClient.Close() })

	// Point the CLI commands at the same server
	os.Setenv("TEMPORAL_HOST", temporalHost)
	os.Setenv("TEMPORAL_NAMESPACE", temporalNamespace)
	os.Unsetenv("TEMPORAL_TASK_QUEUE")
	t.Cleanup(func() {
		os.Unsetenv("TEMPORAL_HOST")
		os.Unsetenv("TEMPORAL_NAMESPACE")
	})

	return temporalClient
}

// resetAuditSchedule removes any leftover audit schedule and registers a
// cleanup so the fixed-ID schedule never leaks between tests.
func resetAuditSchedule(t *testing.T, temporalClient sdkclient.Client) {
	t.Helper()

	ctx := context.Background()
	handle := temporalClient.ScheduleClient().GetHandle(ctx, testAuditScheduleID)
	handle.Delete(ctx) // Ignore error if it doesn't exist

	t.Cleanup(func() {
		h := temporalClient.ScheduleClient().GetHandle(context.Background(), testAuditScheduleID)
		h.Delete(context.Background())
	})
}

// createTestAuditSchedule creates the audit schedule directly through the
// SDK so command tests do not depend on the create command under test.
func createTestAuditSchedule(t *testing.T, temporalClient sdkclient.Client, interval time.Duration) sdkclient.ScheduleHandle {
	t.Helper()

	resetAuditSchedule(t, temporalClient)

	ctx := context.Background()
	_, err := temporalClient.ScheduleClient().Create(ctx, sdkclient.ScheduleOptions{
		ID: testAuditScheduleID,
		Spec: sdkclient.ScheduleSpec{
			Intervals: []sdkclient.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Action: &sdkclient.ScheduleWorkflowAction{
			ID:        "audit-ledger-run",
			Workflow:  "AuditLedgerWorkflow",
			TaskQueue: "drugledger-audit-test",
			Args:      []interface{}{temporal.AuditLedgerInput{}},
		},
	})
	require.NoError(t, err)

	return temporalClient.ScheduleClient().GetHandle(ctx, testAuditScheduleID)
}

// createTemporalTestApp creates a CLI app for testing Temporal commands
func createTemporalTestApp() *cli.App {
	return &cli.App{
		Name:  "drugledger",
		Usage: "Pharmaceutical supply chain ledger service CLI",
		Commands: []*cli.Command{
			{
				Name:  "temporal",
				Usage: "Temporal schedule management commands",
				Subcommands: []*cli.Command{
					listSchedulesCommand(),
					describeScheduleCommand(),
					pauseScheduleCommand(),
					resumeScheduleCommand(),
					deleteScheduleCommand(),
					createAuditScheduleCommand(),
					updateAuditScheduleCommand(),
					triggerAuditCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

func runTemporalApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	oldStderr := os.Stderr
	r2, w2, _ := os.Pipe()
	os.Stderr = w2

	app := createTemporalTestApp()
	err = app.Run(append([]string{"drugledger", "temporal"}, args...))

	w.Close()
	w2.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var buf bytes.Buffer
	buf.ReadFrom(r)
	var buf2 bytes.Buffer
	buf2.ReadFrom(r2)

	return buf.String(), buf2.String(), err
}

func TestCreateAuditScheduleCommand(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	resetAuditSchedule(t, temporalClient)

	stdout, _, err := runTemporalApp(t, "create-audit-schedule", "30m")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Audit schedule created")
	assert.Contains(t, stdout, "30m")
	assert.Contains(t, stdout, "drugledger-audit")

	// Verify the schedule exists with the right workflow and interval
	ctx := context.Background()
	handle := temporalClient.ScheduleClient().GetHandle(ctx, testAuditScheduleID)
	desc, err := handle.Describe(ctx)
	require.NoError(t, err)

	action, ok := desc.Schedule.Action.(*sdkclient.ScheduleWorkflowAction)
	require.True(t, ok)
	assert.Equal(t, "AuditLedgerWorkflow", action.Workflow)
	assert.Equal(t, "drugledger-audit", action.TaskQueue)

	require.Len(t, desc.Schedule.Spec.Intervals, 1)
	assert.Equal(t, 30*time.Minute, desc.Schedule.Spec.Intervals[0].Every)
}

func TestCreateAuditScheduleCommand_InvalidInterval(t *testing.T) {
	setupTestTemporal(t)

	_, _, err := runTemporalApp(t, "create-audit-schedule", "not-a-duration")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid interval")
}

func TestUpdateAuditScheduleCommand(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	handle := createTestAuditSchedule(t, temporalClient, 30*time.Minute)

	stdout, _, err := runTemporalApp(t, "update-audit-schedule", "1h")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Audit schedule updated")
	assert.Contains(t, stdout, "1h")

	ctx := context.Background()
	desc, err := handle.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, desc.Schedule.Spec.Intervals, 1)
	assert.Equal(t, time.Hour, desc.Schedule.Spec.Intervals[0].Every)
}

func TestUpdateAuditScheduleCommand_CreatesWhenMissing(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	resetAuditSchedule(t, temporalClient)

	stdout, _, err := runTemporalApp(t, "update-audit-schedule", "2h")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Audit schedule updated")

	// The upsert created the schedule from scratch
	ctx := context.Background()
	handle := temporalClient.ScheduleClient().GetHandle(ctx, testAuditScheduleID)
	desc, err := handle.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, desc.Schedule.Spec.Intervals, 1)
	assert.Equal(t, 2*time.Hour, desc.Schedule.Spec.Intervals[0].Every)
}

func TestPauseScheduleCommand(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	handle := createTestAuditSchedule(t, temporalClient, 30*time.Minute)

	stdout, _, err := runTemporalApp(t, "pause-schedule", "--note", "Audit halted for investigation")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Audit schedule paused")
	assert.Contains(t, stdout, "Audit halted for investigation")

	ctx := context.Background()
	desc, err := handle.Describe(ctx)
	require.NoError(t, err)
	assert.True(t, desc.Schedule.State.Paused)
	assert.Equal(t, "Audit halted for investigation", desc.Schedule.State.Note)
}

func TestResumeScheduleCommand(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	handle := createTestAuditSchedule(t, temporalClient, 30*time.Minute)

	ctx := context.Background()
	require.NoError(t, handle.Pause(ctx, sdkclient.SchedulePauseOptions{Note: "Paused for test"}))

	stdout, _, err := runTemporalApp(t, "resume-schedule", "--note", "Investigation complete")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Audit schedule resumed")

	desc, err := handle.Describe(ctx)
	require.NoError(t, err)
	assert.False(t, desc.Schedule.State.Paused)
	assert.Equal(t, "Investigation complete", desc.Schedule.State.Note)
}

func TestDeleteScheduleCommand(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	handle := createTestAuditSchedule(t, temporalClient, 30*time.Minute)

	stdout, _, err := runTemporalApp(t, "delete-schedule", "--force")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Audit schedule deleted")

	// Verify the schedule is gone
	_, err = handle.Describe(context.Background())
	assert.Error(t, err)
}

func TestDescribeScheduleCommand(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	createTestAuditSchedule(t, temporalClient, 45*time.Minute)

	stdout, _, err := runTemporalApp(t, "describe-schedule")
	require.NoError(t, err)

	assert.Contains(t, stdout, testAuditScheduleID)
	assert.Contains(t, stdout, "45m")
	assert.Contains(t, stdout, "Paused:         false")
}

func TestTriggerAuditCommand(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	createTestAuditSchedule(t, temporalClient, 30*time.Minute)

	stdout, _, err := runTemporalApp(t, "trigger-audit")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Audit triggered")
}

func TestListSchedulesCommand(t *testing.T) {
	temporalClient := setupTestTemporal(t)
	createTestAuditSchedule(t, temporalClient, 30*time.Minute)

	stdout, stderr, err := runTemporalApp(t, "list-schedules")
	require.NoError(t, err)

	assert.Contains(t, stdout, testAuditScheduleID)
	assert.Contains(t, stderr, "Total:")
}
