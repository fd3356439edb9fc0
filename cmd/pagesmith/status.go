package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusCommand = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a generation job",
	Args:  cobra.ExactArgs(1),
	RunE:  statusCmd,
}

func init() {
	rootCmd.AddCommand(statusCommand)
}

func statusCmd(_ *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job ID %q: %w", args[0], err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := a.jobs.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Job:      %s\n", j.ID)
	fmt.Printf("Status:   %s\n", j.Status)
	fmt.Printf("Step:     %s (%d%%)\n", j.CurrentStep, j.ProgressPercent())
	fmt.Printf("Tokens:   %d\n", j.TokensUsed)
	if j.Error != "" {
		fmt.Printf("Error:    %s\n", j.Error)
	}
	return nil
}
