package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mateo/pagesmith/internal/pipeline"
	"github.com/mateo/pagesmith/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Create a generation job and drive it to completion",
	Long:  "Creates a job for the given business and runs the full generation sequence, printing the resulting page slug.",
	RunE:  runCmd,
}

var (
	runBusiness    string
	runIndustry    string
	runGoal        string
	runCompetitors string
	runPageType    string
	runPageName    string
	runClientID    string
)

func init() {
	runCommand.Flags().StringVarP(&runBusiness, "business", "b", "", "Business name (required)")
	runCommand.Flags().StringVarP(&runIndustry, "industry", "i", "", "Industry or niche")
	runCommand.Flags().StringVarP(&runGoal, "goal", "g", "", "Conversion goal for the page")
	runCommand.Flags().StringVar(&runCompetitors, "competitors", "", "Comma-separated competitor names")
	runCommand.Flags().StringVar(&runPageType, "page-type", "sales_page", "Page type tag")
	runCommand.Flags().StringVar(&runPageName, "page-name", "", "Human name for the page (defaults to business + page type)")
	runCommand.Flags().StringVar(&runClientID, "client", "", "Owning client reference")
	_ = runCommand.MarkFlagRequired("business")
	rootCmd.AddCommand(runCommand)
}

func runCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	inputs := map[string]string{
		pipeline.InputBusinessName: runBusiness,
		pipeline.InputIndustry:     runIndustry,
		pipeline.InputGoal:         runGoal,
		pipeline.InputCompetitors:  runCompetitors,
		pipeline.InputPageName:     runPageName,
	}

	j, err := a.jobs.Create(ctx, runClientID, runPageType, inputs)
	if err != nil {
		return err
	}
	fmt.Printf("Created job %s\n", j.ID)

	a.runner.SetProgress(func(j *types.Job) {
		fmt.Printf("  %3d%%  next: %s\n", j.ProgressPercent(), j.CurrentStep)
	})

	final, err := a.runner.Run(ctx, j.ID)
	if err != nil {
		if final != nil {
			fmt.Printf("Job failed at step %s: %s\n", final.CurrentStep, final.Error)
		}
		return err
	}

	fmt.Printf("Job complete: %d tokens used\n", final.TokensUsed)
	if resp, ok := final.StepOutputs[types.StepAssembly]; ok {
		fmt.Printf("Assembly output: %s\n", string(resp))
	}
	return nil
}
