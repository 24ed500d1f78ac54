package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu           sync.Mutex
	exists       bool
	interval     time.Duration
	paused       bool
	note         string
	triggerCount int
	createErr    error
	deleteErr    error
	triggerErr   error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// CreateAuditSchedule records that the audit schedule was created.
func (m *MockScheduler) CreateAuditSchedule(ctx context.Context, interval time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exists {
		return fmt.Errorf("schedule %q already exists", auditScheduleID)
	}

	m.exists = true
	m.interval = interval
	return nil
}

// UpsertAuditSchedule creates the schedule or updates its interval.
func (m *MockScheduler) UpsertAuditSchedule(ctx context.Context, interval time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.exists = true
	m.interval = interval // Creates or updates
	return nil
}

// DeleteAuditSchedule records that the audit schedule was deleted.
func (m *MockScheduler) DeleteAuditSchedule(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return fmt.Errorf("schedule %q not found", auditScheduleID)
	}

	m.exists = false
	m.paused = false
	m.note = ""
	return nil
}

// DescribeAuditSchedule returns the mock schedule state.
func (m *MockScheduler) DescribeAuditSchedule(ctx context.Context) (*AuditScheduleStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return nil, fmt.Errorf("schedule %q not found", auditScheduleID)
	}

	return &AuditScheduleStatus{
		ScheduleID: auditScheduleID,
		Paused:     m.paused,
		Note:       m.note,
		Interval:   m.interval,
	}, nil
}

// PauseAuditSchedule marks the schedule as paused.
func (m *MockScheduler) PauseAuditSchedule(ctx context.Context, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return fmt.Errorf("schedule %q not found", auditScheduleID)
	}

	m.paused = true
	m.note = note
	return nil
}

// ResumeAuditSchedule marks the schedule as unpaused.
func (m *MockScheduler) ResumeAuditSchedule(ctx context.Context, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return fmt.Errorf("schedule %q not found", auditScheduleID)
	}

	m.paused = false
	m.note = note
	return nil
}

// TriggerAudit records that an immediate audit was requested.
func (m *MockScheduler) TriggerAudit(ctx context.Context) error {
	if m.triggerErr != nil {
		return m.triggerErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return fmt.Errorf("schedule %q not found", auditScheduleID)
	}

	m.triggerCount++
	return nil
}

// SetCreateError makes CreateAuditSchedule and UpsertAuditSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.createErr = err
}

// SetDeleteError makes DeleteAuditSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

// SetTriggerError makes TriggerAudit return an error.
func (m *MockScheduler) SetTriggerError(err error) {
	m.triggerErr = err
}

// ScheduleExists checks if the audit schedule exists.
func (m *MockScheduler) ScheduleExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

// GetScheduleInterval returns the audit schedule's interval.
func (m *MockScheduler) GetScheduleInterval() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval, m.exists
}

// IsPaused reports whether the schedule is paused.
func (m *MockScheduler) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// TriggerCount returns the number of immediate audits requested.
func (m *MockScheduler) TriggerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggerCount
}

// Reset clears the schedule and all errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = false
	m.interval = 0
	m.paused = false
	m.note = ""
	m.triggerCount = 0
	m.createErr = nil
	m.deleteErr = nil
	m.triggerErr = nil
}
