package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Payal2904/drug-verification-system-sub000/service/db"
	"github.com/Payal2904/drug-verification-system-sub000/service/ledger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func chainTailCommand() *cli.Command {
	return &cli.Command{
		Name:  "tail",
		Usage: "Show the newest block of the hash chain",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			tail, err := store.GetChainTail(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get chain tail: %w", err)
			}

			if tail == nil {
				if c.Bool("json") {
					return outputJSON(map[string]interface{}{"empty": true})
				}
				fmt.Println("Ledger is empty (no transactions)")
				return nil
			}

			if c.Bool("json") {
				return outputJSON(map[string]interface{}{
					"block_number": tail.BlockNumber,
					"hash":         tail.Hash,
				})
			}

			fmt.Printf("Block Number: %d\n", tail.BlockNumber)
			fmt.Printf("Hash:         %s\n", tail.Hash)
			return nil
		},
	}
}

func listBatchesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-batches",
		Usage:   "List all batch identifiers in the ledger",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			batchIDs, err := store.ListBatchIDs(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list batches: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(batchIDs)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BATCH ID")
			for _, id := range batchIDs {
				fmt.Fprintf(w, "%s\n", id)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d batches\n", len(batchIDs))
			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List ledger transactions",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "batch",
				Aliases: []string{"b"},
				Usage:   "Filter by batch identifier",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: json (default) or human",
				Value: "json",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var transactions []*ledger.Transaction

			batchID := c.String("batch")
			if batchID != "" {
				transactions, err = store.ListBatchTransactions(context.Background(), batchID)
			} else {
				transactions, err = store.ListTransactions(context.Background())
			}
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			format := c.String("format")

			// Default to JSON output (following project philosophy: stdout = JSON)
			if format == "json" {
				return outputJSON(transactions)
			}

			// Human-readable output (to stdout, per user preference)
			if len(transactions) == 0 {
				fmt.Println("No transactions found")
				return nil
			}

			for i, tx := range transactions {
				if i > 0 {
					fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
				}

				fmt.Printf("Block Number:   %d\n", tx.BlockNumber)
				fmt.Printf("Hash:           %s\n", tx.Hash)
				fmt.Printf("Previous Hash:  %s\n", tx.PreviousHash)
				fmt.Printf("Batch:          %s\n", tx.BatchID)
				fmt.Printf("From:           %s\n", formatOptionalEntity(tx.FromEntityID))
				fmt.Printf("To:             %s\n", tx.ToEntityID)
				fmt.Printf("Type:           %s\n", tx.Type)
				fmt.Printf("Quantity:       %d\n", tx.Quantity)

				// Money columns are minor units - show major units for readability
				fmt.Printf("Unit Price:     %.2f (%d minor units)\n", float64(tx.UnitPrice)/100, tx.UnitPrice)
				fmt.Printf("Total Amount:   %.2f (%d minor units)\n", float64(tx.TotalAmount)/100, tx.TotalAmount)

				fmt.Printf("Date:           %s\n", tx.TransactionDate.Format(time.RFC3339))
				if tx.Notes != nil && *tx.Notes != "" {
					fmt.Printf("Notes:          %s\n", *tx.Notes)
				}
				fmt.Printf("Created At:     %s\n", tx.CreatedAt.Format(time.RFC3339))
			}

			fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(transactions))
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	// Try to get from parent context first (for global flags)
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Helper function to format optional entity identifiers
func formatOptionalEntity(id *string) string {
	if id != nil && *id != "" {
		return *id
	}
	return "(none)"
}
