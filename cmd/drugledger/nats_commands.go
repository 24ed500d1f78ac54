package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/Payal2904/drug-verification-system-sub000/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to transaction events for a batch.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to transaction events for a batch",
		ArgsUsage: "[batch_id]",
		Description: `Subscribe to real-time transaction events published to NATS JetStream.

This command connects to NATS and streams transaction events for the specified batch.
Events are published to the subject: ledger.tx.{batch_id}

Example:
  drugledger nats subscribe BATCH-2026-001 --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "drugledger-cli",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("batch ID is required")
			}

			batchID := c.Args().Get(0)
			natsURL := c.String("nats-url")
			durable := c.Bool("durable")
			consumerName := c.String("consumer-name")
			jsonOutput := c.Bool("json")

			return streamTransactionEvents(batchID, natsURL, durable, consumerName, jsonOutput)
		},
	}
}

// streamTransactionEvents connects to NATS and streams transaction events.
func streamTransactionEvents(batchID, natsURL string, durable bool, consumerName string, jsonOutput bool) error {
	// Connect to NATS
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := natspkg.TransactionSubject(batchID)

	if !jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for transactions... (Ctrl-C to exit)\n\n")
	}

	// Create consumer config
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	// Create or update consumer
	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Receive messages
	msgChan := make(chan jetstream.Msg, 10)

	// Start consuming in background
	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TransactionEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}

			count++

			if jsonOutput {
				// Output raw JSON
				data, _ := json.Marshal(event)
				fmt.Println(string(data))
			} else {
				printTransactionEvent(count, &event)
			}

			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\n\n✅ Received %d transactions\n", count)
				fmt.Println("Shutting down...")
			}
			return nil
		}
	}
}

func printTransactionEvent(count int, event *natspkg.TransactionEvent) {
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Transaction #%d\n", count)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Batch:        %s\n", event.BatchID)
	fmt.Printf("Block Number: %d\n", event.BlockNumber)
	fmt.Printf("Hash:         %s\n", event.Hash)
	fmt.Printf("Type:         %s\n", event.Type)
	from := "(origin)"
	if event.FromEntityID != nil && *event.FromEntityID != "" {
		from = *event.FromEntityID
	}
	fmt.Printf("From:         %s\n", from)
	fmt.Printf("To:           %s\n", event.ToEntityID)
	fmt.Printf("Quantity:     %d\n", event.Quantity)
	fmt.Printf("Assurance:    %s\n", event.Assurance)
	fmt.Printf("Date:         %s\n", event.TransactionDate.Format(time.RFC3339))
	fmt.Printf("Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Printf("\n")
}

// anomaliesStreamCommand streams anomaly alerts, optionally for one batch.
func anomaliesStreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "anomalies",
		Usage:     "Stream anomaly alerts (all batches, or one batch)",
		ArgsUsage: "[batch_id]",
		Description: `Stream anomaly alerts published to NATS JetStream.

Alerts are published to the subject ledger.anomaly.{batch_id}. Without a
batch argument this subscribes to alerts for every batch.

Example:
  drugledger nats anomalies
  drugledger nats anomalies BATCH-2026-001 --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			subject := "ledger.anomaly.*"
			if c.NArg() == 1 {
				subject = natspkg.AnomalySubject(c.Args().Get(0))
			}

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			if !jsonOutput {
				fmt.Printf("📡 Subscribing to: %s\n", subject)
				fmt.Printf("\nWaiting for anomaly alerts... (Ctrl-C to exit)\n\n")
			}

			cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			msgChan := make(chan jetstream.Msg, 10)
			go func() {
				_, _ = cons.Consume(func(msg jetstream.Msg) {
					msgChan <- msg
				})
			}()

			count := 0
			for {
				select {
				case msg := <-msgChan:
					var alert natspkg.AnomalyAlert
					if err := json.Unmarshal(msg.Data(), &alert); err != nil {
						if !jsonOutput {
							fmt.Fprintf(os.Stderr, "Error parsing alert: %v\n", err)
						}
						msg.Ack()
						continue
					}

					count++

					if jsonOutput {
						data, _ := json.Marshal(alert)
						fmt.Println(string(data))
					} else {
						fmt.Printf("⚠️  Anomaly #%d\n", count)
						fmt.Printf("   Batch:    %s\n", alert.BatchID)
						fmt.Printf("   Type:     %s\n", alert.Type)
						fmt.Printf("   Severity: %s\n", alert.Severity)
						fmt.Printf("   Block:    %d\n", alert.BlockNumber)
						fmt.Printf("   Risk:     %s\n", alert.RiskLevel)
						fmt.Printf("   Message:  %s\n", alert.Message)
						fmt.Printf("   Detected: %s\n\n", alert.DetectedAt.Format(time.RFC3339))
					}

					msg.Ack()

				case <-sigChan:
					if !jsonOutput {
						fmt.Printf("\n\n✅ Received %d alerts\n", count)
						fmt.Println("Shutting down...")
					}
					return nil
				}
			}
		},
	}
}

// awaitCommand blocks until a matching transaction event arrives for a batch.
func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a transaction matching criteria arrives",
		ArgsUsage: "BATCH_ID",
		Description: `Block until a transaction event for the batch matches all filters.

Only events published after the command starts are considered. The jq
filters run against the full event JSON, so any published field can be
matched.

Example:
  drugledger nats await BATCH-2026-001 --type sale --timeout 2m
  drugledger nats await BATCH-2026-001 --must-jq '.quantity >= 500'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Filter by transaction type (manufacture, transfer, sale, return, recall)",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for a matching transaction",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("batch ID is required")
			}

			batchID := c.Args().Get(0)
			natsURL := c.String("nats-url")
			txType := c.String("type")
			jqFilters := c.StringSlice("must-jq")
			timeout := c.Duration("timeout")
			jsonOutput := c.Bool("json")

			// Compile jq filters
			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			subject := natspkg.TransactionSubject(batchID)

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Waiting for transaction on batch %s...\n", batchID)
				if txType != "" {
					fmt.Fprintf(os.Stderr, "  Type: %s\n", txType)
				}
				for _, filter := range jqFilters {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", timeout)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			// Only consider events published after this point
			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
				DeliverPolicy: jetstream.DeliverNewPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			msgChan := make(chan jetstream.Msg, 10)
			go func() {
				_, _ = cons.Consume(func(msg jetstream.Msg) {
					msgChan <- msg
				})
			}()

			for {
				select {
				case msg := <-msgChan:
					var event natspkg.TransactionEvent
					if err := json.Unmarshal(msg.Data(), &event); err != nil {
						msg.Ack()
						continue
					}
					msg.Ack()

					if txType != "" && event.Type != txType {
						continue
					}

					if len(compiledJQFilters) > 0 {
						input, err := eventToJQInput(&event)
						if err != nil {
							continue
						}
						if !matchesFilters(input, compiledJQFilters) {
							continue
						}
					}

					// Matched - print and exit
					if jsonOutput {
						data, _ := json.MarshalIndent(event, "", "  ")
						fmt.Println(string(data))
					} else {
						printTransactionEventDetailed(&event)
					}
					return nil

				case <-ctx.Done():
					return fmt.Errorf("timed out after %v waiting for matching transaction", timeout)
				}
			}
		},
	}
}

func printTransactionEventDetailed(event *natspkg.TransactionEvent) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("✓ Transaction Received")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Batch:        %s\n", event.BatchID)
	fmt.Printf("Block Number: %d\n", event.BlockNumber)
	fmt.Printf("Hash:         %s\n", event.Hash)
	fmt.Printf("Type:         %s\n", event.Type)
	from := "(origin)"
	if event.FromEntityID != nil && *event.FromEntityID != "" {
		from = *event.FromEntityID
	}
	fmt.Printf("From:         %s\n", from)
	fmt.Printf("To:           %s\n", event.ToEntityID)
	fmt.Printf("Quantity:     %d\n", event.Quantity)
	fmt.Printf("Assurance:    %s\n", event.Assurance)
	fmt.Printf("Date:         %s\n", event.TransactionDate.Format(time.RFC3339))
	fmt.Printf("Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// eventToJQInput converts a transaction event to the generic JSON value
// gojq operates on.
func eventToJQInput(event *natspkg.TransactionEvent) (interface{}, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// matchesFilters reports whether every compiled jq filter evaluates to a
// truthy value against the input.
func matchesFilters(input interface{}, filters []*gojq.Code) bool {
	for _, code := range filters {
		iter := code.Run(input)
		v, ok := iter.Next()
		if !ok {
			// No result means filter failed
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the LEDGER JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  drugledger nats inspect-stream`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			// Get stream info
			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("Stream: %s\n", info.Config.Name)
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Description:  %s\n", info.Config.Description)
				fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
				fmt.Printf("Messages:     %d\n", info.State.Msgs)
				fmt.Printf("Bytes:        %d\n", info.State.Bytes)
				fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
				fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
				fmt.Printf("Consumers:    %d\n", info.State.Consumers)
				fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
				fmt.Printf("Storage:      %s\n", info.Config.Storage)
				fmt.Printf("\n")
			}

			return nil
		},
	}
}
