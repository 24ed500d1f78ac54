package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu               sync.RWMutex
	publishedEvents  []*TransactionEvent
	publishedAlerts  []*AnomalyAlert
	publishedChain   []*ChainAlert
	publishError     error
	anomaliesError   error
	chainAlertsError error
	closed           bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*TransactionEvent, 0),
		publishedAlerts: make([]*AnomalyAlert, 0),
		publishedChain:  make([]*ChainAlert, 0),
	}
}

// PublishTransaction records the event and returns any configured error.
func (m *MockPublisher) PublishTransaction(ctx context.Context, event *TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// PublishAnomalies records the alerts and returns any configured error.
func (m *MockPublisher) PublishAnomalies(ctx context.Context, alerts []*AnomalyAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.anomaliesError != nil {
		return m.anomaliesError
	}

	m.publishedAlerts = append(m.publishedAlerts, alerts...)
	return nil
}

// PublishChainAlert records the alert and returns any configured error.
func (m *MockPublisher) PublishChainAlert(ctx context.Context, alert *ChainAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chainAlertsError != nil {
		return m.chainAlertsError
	}

	m.publishedChain = append(m.publishedChain, alert)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published transaction events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*TransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*TransactionEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published transaction events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForBatch returns events published for a specific batch.
func (m *MockPublisher) GetPublishedEventsForBatch(batchID string) []*TransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*TransactionEvent, 0)
	for _, event := range m.publishedEvents {
		if event.BatchID == batchID {
			events = append(events, event)
		}
	}
	return events
}

// GetPublishedAlerts returns all published anomaly alerts (for testing).
func (m *MockPublisher) GetPublishedAlerts() []*AnomalyAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]*AnomalyAlert, len(m.publishedAlerts))
	copy(alerts, m.publishedAlerts)
	return alerts
}

// GetPublishedAlertsForBatch returns alerts published for a specific batch.
func (m *MockPublisher) GetPublishedAlertsForBatch(batchID string) []*AnomalyAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]*AnomalyAlert, 0)
	for _, alert := range m.publishedAlerts {
		if alert.BatchID == batchID {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// GetPublishedChainAlerts returns all published chain alerts (for testing).
func (m *MockPublisher) GetPublishedChainAlerts() []*ChainAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]*ChainAlert, len(m.publishedChain))
	copy(alerts, m.publishedChain)
	return alerts
}

// SetPublishError configures the mock to return an error on PublishTransaction.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// SetAnomaliesError configures the mock to return an error on PublishAnomalies.
func (m *MockPublisher) SetAnomaliesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomaliesError = err
}

// SetChainAlertsError configures the mock to return an error on PublishChainAlert.
func (m *MockPublisher) SetChainAlertsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainAlertsError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]*TransactionEvent, 0)
	m.publishedAlerts = make([]*AnomalyAlert, 0)
	m.publishedChain = make([]*ChainAlert, 0)
	m.publishError = nil
	m.anomaliesError = nil
	m.chainAlertsError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
