package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Payal2904/drug-verification-system-sub000/client"
	"github.com/urfave/cli/v2"
)

func ledgerCommands() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "HTTP client commands for the ledger service",
		Subcommands: []*cli.Command{
			submitCommand(),
			verifyCommand(),
			historyCommand(),
			anomaliesCommand(),
			batchesCommand(),
			statsCommand(),
		},
	}
}

func serverURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Value:   "http://localhost:8080",
		Usage:   "HTTP server URL",
		EnvVars: []string{"DRUGLEDGER_SERVER_URL"},
	}
}

func newLedgerClient(serverURL string) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(serverURL, nil, logger)
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit a supply chain transaction to the ledger",
		Flags: []cli.Flag{
			serverURLFlag(),
			&cli.StringFlag{
				Name:     "batch",
				Aliases:  []string{"b"},
				Usage:    "Batch identifier (e.g., BATCH-2026-001)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Sending entity identifier (omit for manufacture events)",
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Receiving entity identifier",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "type",
				Usage:    "Transaction type (manufacture, transfer, sale, return, recall)",
				Required: true,
			},
			&cli.Int64Flag{
				Name:     "quantity",
				Aliases:  []string{"q"},
				Usage:    "Number of units",
				Required: true,
			},
			&cli.Int64Flag{
				Name:  "unit-price",
				Usage: "Price per unit in minor currency units (e.g., cents)",
			},
			&cli.StringFlag{
				Name:  "date",
				Usage: "Transaction date in RFC3339 format (defaults to now)",
			},
			&cli.StringFlag{
				Name:  "shipping",
				Usage: "Shipping details as a JSON object",
			},
			&cli.StringFlag{
				Name:  "temperature-log",
				Usage: "Temperature log as a JSON array of readings",
			},
			&cli.StringFlag{
				Name:  "signature",
				Usage: "Digital signature for the transaction",
			},
			&cli.StringFlag{
				Name:  "notes",
				Usage: "Free-form notes",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output result as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			jsonOutput := c.Bool("json")

			txDate := time.Now().UTC()
			if dateStr := c.String("date"); dateStr != "" {
				parsed, err := time.Parse(time.RFC3339, dateStr)
				if err != nil {
					return fmt.Errorf("invalid date (use RFC3339): %w", err)
				}
				txDate = parsed
			}

			req := client.CreateTransactionRequest{
				BatchID:         c.String("batch"),
				ToEntityID:      c.String("to"),
				TransactionType: c.String("type"),
				Quantity:        c.Int64("quantity"),
				UnitPrice:       c.Int64("unit-price"),
				TransactionDate: txDate,
			}
			if from := c.String("from"); from != "" {
				req.FromEntityID = &from
			}
			if sig := c.String("signature"); sig != "" {
				req.DigitalSignature = &sig
			}
			if notes := c.String("notes"); notes != "" {
				req.Notes = &notes
			}
			if shipping := c.String("shipping"); shipping != "" {
				if !json.Valid([]byte(shipping)) {
					return fmt.Errorf("--shipping must be valid JSON")
				}
				req.ShippingDetails = json.RawMessage(shipping)
			}
			if tempLog := c.String("temperature-log"); tempLog != "" {
				if !json.Valid([]byte(tempLog)) {
					return fmt.Errorf("--temperature-log must be valid JSON")
				}
				req.TemperatureLog = json.RawMessage(tempLog)
			}

			cl := newLedgerClient(c.String("server"))

			result, err := cl.CreateTransaction(context.Background(), req)
			if err != nil {
				return fmt.Errorf("failed to submit transaction: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("✓ Transaction appended\n")
			fmt.Printf("  Batch:        %s\n", result.Transaction.BatchID)
			fmt.Printf("  Block Number: %d\n", result.Transaction.BlockNumber)
			fmt.Printf("  Hash:         %s\n", result.Transaction.Hash)
			if result.Mined {
				fmt.Printf("  Mined:        yes (%d iterations)\n", result.Iterations)
			} else {
				fmt.Printf("  Mined:        no (iteration cap reached, lower assurance)\n")
			}
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Verify hash chain integrity (full chain, or one batch with --batch)",
		Flags: []cli.Flag{
			serverURLFlag(),
			&cli.StringFlag{
				Name:    "batch",
				Aliases: []string{"b"},
				Usage:   "Verify only this batch's chain continuity",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cl := newLedgerClient(c.String("server"))
			jsonOutput := c.Bool("json")

			// Batch-local verification rides on the history endpoint
			if batchID := c.String("batch"); batchID != "" {
				history, err := cl.GetSupplyChainHistory(context.Background(), batchID)
				if err != nil {
					return fmt.Errorf("failed to verify batch: %w", err)
				}

				if jsonOutput {
					data, _ := json.MarshalIndent(history.ChainIntegrity, "", "  ")
					fmt.Println(string(data))
				} else {
					fmt.Printf("Batch:        %s\n", batchID)
					fmt.Printf("Transactions: %d\n", history.ChainIntegrity.TransactionCount)
					fmt.Printf("Valid:        %v\n", history.ChainIntegrity.IsValid)
					fmt.Printf("Message:      %s\n", history.ChainIntegrity.Message)
				}

				if !history.ChainIntegrity.IsValid {
					return fmt.Errorf("batch chain verification failed: %s", history.ChainIntegrity.Message)
				}
				return nil
			}

			verification, err := cl.VerifyChain(context.Background())
			if err != nil {
				return fmt.Errorf("failed to verify chain: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(verification, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("Total Blocks: %d\n", verification.TotalBlocks)
				fmt.Printf("Valid:        %v\n", verification.IsValid)
				if len(verification.BrokenLinks) > 0 {
					fmt.Printf("\nBroken Links:\n")
					for _, link := range verification.BrokenLinks {
						fmt.Printf("  Block %d:\n", link.BlockNumber)
						fmt.Printf("    Expected previous hash: %s\n", link.ExpectedPreviousHash)
						fmt.Printf("    Actual previous hash:   %s\n", link.ActualPreviousHash)
					}
				}
			}

			if !verification.IsValid {
				return fmt.Errorf("chain verification failed: %d broken links", len(verification.BrokenLinks))
			}
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show a batch's supply chain history",
		ArgsUsage: "BATCH_ID",
		Flags: []cli.Flag{
			serverURLFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("batch ID is required")
			}

			batchID := c.Args().Get(0)
			cl := newLedgerClient(c.String("server"))

			history, err := cl.GetSupplyChainHistory(context.Background(), batchID)
			if err != nil {
				return fmt.Errorf("failed to get history: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(history, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Batch: %s (%d transactions)\n", history.BatchID, history.TotalTransactions)
			if history.ChainIntegrity != nil {
				fmt.Printf("Chain: valid=%v - %s\n", history.ChainIntegrity.IsValid, history.ChainIntegrity.Message)
			}
			fmt.Println()

			for _, tx := range history.Transactions {
				fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
				fmt.Printf("Block %d: %s\n", tx.BlockNumber, tx.TransactionType)
				from := "(origin)"
				if tx.FromEntityID != nil && *tx.FromEntityID != "" {
					from = *tx.FromEntityID
				}
				fmt.Printf("  %s -> %s\n", from, tx.ToEntityID)
				fmt.Printf("  Quantity:  %d\n", tx.Quantity)
				fmt.Printf("  Date:      %s\n", tx.TransactionDate.Format(time.RFC3339))
				fmt.Printf("  Hash:      %s\n", tx.Hash)
				if tx.Notes != nil && *tx.Notes != "" {
					fmt.Printf("  Notes:     %s\n", *tx.Notes)
				}
			}
			if len(history.Transactions) > 0 {
				fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			}

			return nil
		},
	}
}

func anomaliesCommand() *cli.Command {
	return &cli.Command{
		Name:      "anomalies",
		Usage:     "Sweep a batch for supply chain anomalies",
		ArgsUsage: "BATCH_ID",
		Flags: []cli.Flag{
			serverURLFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("batch ID is required")
			}

			batchID := c.Args().Get(0)
			cl := newLedgerClient(c.String("server"))

			report, err := cl.DetectAnomalies(context.Background(), batchID)
			if err != nil {
				return fmt.Errorf("failed to detect anomalies: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(report, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Batch:      %s\n", report.BatchID)
			fmt.Printf("Risk Level: %s\n", report.RiskLevel)
			fmt.Printf("Anomalies:  %d\n", report.TotalAnomalies)

			if report.TotalAnomalies == 0 {
				fmt.Printf("\n✓ No anomalies detected\n")
				return nil
			}

			fmt.Println()
			for _, a := range report.Anomalies {
				fmt.Printf("  [%s] %s at block %d\n", a.Severity, a.Type, a.BlockNumber)
				fmt.Printf("      %s\n", a.Message)
			}
			return nil
		},
	}
}

func batchesCommand() *cli.Command {
	return &cli.Command{
		Name:    "batches",
		Usage:   "List batch identifiers known to the ledger",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			serverURLFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cl := newLedgerClient(c.String("server"))

			batches, err := cl.ListBatches(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list batches: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(batches, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(batches) == 0 {
				fmt.Println("No batches found")
				return nil
			}
			for _, id := range batches {
				fmt.Println(id)
			}
			fmt.Fprintf(os.Stderr, "\nTotal: %d batches\n", len(batches))
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show ledger-wide statistics",
		Flags: []cli.Flag{
			serverURLFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cl := newLedgerClient(c.String("server"))

			stats, err := cl.GetStats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(stats, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Total Blocks:         %d\n", stats.TotalBlocks)
			fmt.Printf("Unique Batches:       %d\n", stats.UniqueBatches)
			fmt.Printf("Active Entities:      %d\n", stats.ActiveEntities)
			fmt.Printf("Quantity Transferred: %d\n", stats.TotalQuantityTransferred)

			if len(stats.TransactionTypeBreakdown) > 0 {
				fmt.Printf("\nBy Transaction Type:\n")
				for txType, count := range stats.TransactionTypeBreakdown {
					fmt.Printf("  %-15s %d\n", txType, count)
				}
			}

			if stats.ChainIntegrity != nil {
				fmt.Printf("\nChain Integrity: valid=%v", stats.ChainIntegrity.IsValid)
				if len(stats.ChainIntegrity.BrokenLinks) > 0 {
					fmt.Printf(" (%d broken links)", len(stats.ChainIntegrity.BrokenLinks))
				}
				fmt.Println()
			}
			return nil
		},
	}
}
