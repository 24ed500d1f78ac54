package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Payal2904/drug-verification-system-sub000/service/temporal"
	"github.com/urfave/cli/v2"
	sdkclient "go.temporal.io/sdk/client"
)

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List all Temporal schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getSchedulerClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			iter, err := temporalClient.SDKClient().ScheduleClient().List(ctx, sdkclient.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID")
			count := 0
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				fmt.Fprintf(w, "%s\n", schedule.ID)
				count++
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d schedules\n", count)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:    "describe-schedule",
		Usage:   "Describe the recurring audit schedule",
		Aliases: []string{"desc"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getSchedulerClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			status, err := temporalClient.DescribeAuditSchedule(context.Background())
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(status)
			}

			// Pretty output
			fmt.Printf("Schedule ID:    %s\n", status.ScheduleID)
			fmt.Printf("Paused:         %v\n", status.Paused)
			if status.Note != "" {
				fmt.Printf("State Note:     %s\n", status.Note)
			}
			fmt.Printf("Interval:       %v\n", status.Interval)
			if status.NextRunTime != nil {
				fmt.Printf("Next Run:       %s\n", status.NextRunTime.Format(time.RFC3339))
			}

			fmt.Printf("\nRecent Runs: %d\n", len(status.RecentRuns))
			if len(status.RecentRuns) > 0 {
				lastRun := status.RecentRuns[len(status.RecentRuns)-1]
				fmt.Printf("Last Run:    %s\n", lastRun.Format(time.RFC3339))
			}

			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "pause-schedule",
		Usage: "Pause the recurring audit schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why the schedule is paused",
				Value: "Paused via drugledger CLI",
			},
		},
		Action: func(c *cli.Context) error {
			note := c.String("note")

			temporalClient, err := getSchedulerClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.PauseAuditSchedule(context.Background(), note); err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Printf("✓ Audit schedule paused\n")
			if note != "" {
				fmt.Printf("  Note: %s\n", note)
			}
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume-schedule",
		Usage: "Resume the paused audit schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why the schedule is resumed",
				Value: "Resumed via drugledger CLI",
			},
		},
		Action: func(c *cli.Context) error {
			note := c.String("note")

			temporalClient, err := getSchedulerClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.ResumeAuditSchedule(context.Background(), note); err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Printf("✓ Audit schedule resumed\n")
			if note != "" {
				fmt.Printf("  Note: %s\n", note)
			}
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-schedule",
		Usage: "Delete the recurring audit schedule (stops periodic audits)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			// Confirm deletion unless --force
			if !c.Bool("force") {
				fmt.Printf("Are you sure you want to delete the audit schedule? (yes/no): ")
				var response string
				fmt.Scanln(&response)
				if response != "yes" {
					fmt.Println("Cancelled")
					return nil
				}
			}

			temporalClient, err := getSchedulerClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.DeleteAuditSchedule(context.Background()); err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}

			fmt.Printf("✓ Audit schedule deleted\n")
			return nil
		},
	}
}

func createAuditScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-audit-schedule",
		Usage:     "Create the recurring ledger audit schedule",
		ArgsUsage: "<interval>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: audit interval (e.g., 1h)")
			}

			interval, err := time.ParseDuration(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid interval: %w", err)
			}

			temporalClient, err := getSchedulerClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.CreateAuditSchedule(context.Background(), interval); err != nil {
				return fmt.Errorf("failed to create schedule: %w", err)
			}

			fmt.Printf("✓ Audit schedule created\n")
			fmt.Printf("  Interval: %v\n", interval)
			fmt.Printf("  Task Queue: %s\n", temporalClient.TaskQueue())
			return nil
		},
	}
}

func updateAuditScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "update-audit-schedule",
		Usage:     "Create the audit schedule or update its interval if it exists",
		ArgsUsage: "<interval>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: audit interval (e.g., 1h)")
			}

			interval, err := time.ParseDuration(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid interval: %w", err)
			}

			temporalClient, err := getSchedulerClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.UpsertAuditSchedule(context.Background(), interval); err != nil {
				return fmt.Errorf("failed to update schedule: %w", err)
			}

			fmt.Printf("✓ Audit schedule updated\n")
			fmt.Printf("  Interval: %v\n", interval)
			return nil
		},
	}
}

func triggerAuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger-audit",
		Usage: "Run one ledger audit immediately, outside the schedule",
		Action: func(c *cli.Context) error {
			temporalClient, err := getSchedulerClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.TriggerAudit(context.Background()); err != nil {
				return fmt.Errorf("failed to trigger audit: %w", err)
			}

			fmt.Printf("✓ Audit triggered\n")
			fmt.Printf("  Use 'drugledger temporal describe-schedule' to see recent runs\n")
			return nil
		},
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to connect to Temporal
func getSchedulerClient(c *cli.Context) (*temporal.Client, error) {
	// Try to get from parent context first (for global flags)
	host := c.String("temporal-host")
	if host == "" && c.App != nil {
		// Try environment variable directly if flag not found
		host = os.Getenv("TEMPORAL_HOST")
	}
	if host == "" {
		host = "localhost:7233" // Default value
	}

	namespace := c.String("temporal-namespace")
	if namespace == "" && c.App != nil {
		// Try environment variable directly if flag not found
		namespace = os.Getenv("TEMPORAL_NAMESPACE")
	}
	if namespace == "" {
		namespace = "default" // Default value
	}

	taskQueue := getEnvOrDefault("TEMPORAL_TASK_QUEUE", "drugledger-audit")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	temporalClient, err := temporal.NewClient(host, namespace, taskQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return temporalClient, nil
}
