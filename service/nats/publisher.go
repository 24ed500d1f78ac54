package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing ledger events to NATS.
type Publisher interface {
	// PublishTransaction publishes a single transaction event to JetStream.
	// The event is published to the subject "ledger.tx.{batch_id}".
	PublishTransaction(ctx context.Context, event *TransactionEvent) error

	// PublishAnomalies publishes anomaly alerts for a batch.
	// Each alert is published to the subject "ledger.anomaly.{batch_id}".
	PublishAnomalies(ctx context.Context, alerts []*AnomalyAlert) error

	// PublishChainAlert publishes a broken-chain alert to the subject
	// "ledger.chain".
	PublishChainAlert(ctx context.Context, alert *ChainAlert) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes ledger events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for ledger events.
	StreamName = "LEDGER"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "ledger.>"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// TransactionSubject returns the JetStream subject for a batch's
// transaction events.
func TransactionSubject(batchID string) string {
	return fmt.Sprintf("ledger.tx.%s", batchID)
}

// AnomalySubject returns the JetStream subject for a batch's anomaly alerts.
func AnomalySubject(batchID string) string {
	return fmt.Sprintf("ledger.anomaly.%s", batchID)
}

// ChainAlertSubject is the JetStream subject for broken-chain alerts.
const ChainAlertSubject = "ledger.chain"

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("drugledger-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}

	// Ensure stream exists
	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Try to get existing stream
	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		// Stream exists, log info
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	// Stream doesn't exist, create it
	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Supply chain ledger appends and anomaly alerts",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishTransaction publishes a single transaction event.
func (p *JetStreamPublisher) PublishTransaction(ctx context.Context, event *TransactionEvent) error {
	subject := TransactionSubject(event.BatchID)

	// Marshal event to JSON
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction event: %w", err)
	}

	// Publish to JetStream
	_, err = p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish transaction: %w", err)
	}

	p.logger.Debug("published transaction event",
		"subject", subject,
		"block_number", event.BlockNumber,
		"batch_id", event.BatchID,
	)

	return nil
}

// PublishAnomalies publishes anomaly alerts for a batch.
func (p *JetStreamPublisher) PublishAnomalies(ctx context.Context, alerts []*AnomalyAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	// Publish each alert (JetStream handles batching internally)
	for _, alert := range alerts {
		subject := AnomalySubject(alert.BatchID)

		data, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal anomaly alert: %w", err)
		}

		if _, err := p.js.Publish(ctx, subject, data); err != nil {
			// Log error but continue with other alerts
			p.logger.Error("failed to publish anomaly alert",
				"subject", subject,
				"batch_id", alert.BatchID,
				"type", alert.Type,
				"error", err,
			)
			// Don't fail the entire batch on one error
			continue
		}
	}

	p.logger.Debug("published anomaly alerts",
		"count", len(alerts),
	)

	return nil
}

// PublishChainAlert publishes a broken-chain alert.
func (p *JetStreamPublisher) PublishChainAlert(ctx context.Context, alert *ChainAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal chain alert: %w", err)
	}

	if _, err := p.js.Publish(ctx, ChainAlertSubject, data); err != nil {
		return fmt.Errorf("failed to publish chain alert: %w", err)
	}

	p.logger.Warn("published chain alert",
		"subject", ChainAlertSubject,
		"broken_links", len(alert.BrokenLinks),
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
