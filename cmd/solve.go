package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mathchat/internal/llm"
	"github.com/abhisek/mathchat/internal/store"
)

var solveCmd = &cobra.Command{
	Use:   "solve <exercise>",
	Short: "Solve an exercise with Wolfram Alpha and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.LLMConfig().Validate(); err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		provider, err := llm.NewProvider(ctx, cfg.LLMConfig(), store.NopEventRepo{}, logger)
		if err != nil {
			return fmt.Errorf("llm provider: %w", err)
		}
		slv, err := newSolver(cfg, provider, logger)
		if err != nil {
			return err
		}

		exercise := strings.Join(args, " ")
		fmt.Println(slv.Solve(ctx, exercise))

		work, _ := cmd.Flags().GetString("work")
		if work == "" {
			return nil
		}

		steps := slv.SolveSteps(ctx, work)
		if steps.Len() == 0 {
			fmt.Println("No intermediate steps found.")
			return nil
		}
		for i := range steps.Queries {
			fmt.Printf("%d. %s\n", i+1, steps.Queries[i])
			if steps.Explanations[i] != "" {
				fmt.Printf("   %s\n", steps.Explanations[i])
			}
			fmt.Printf("   = %s\n", steps.Solutions[i])
		}
		return nil
	},
}

func init() {
	solveCmd.Flags().StringP("work", "w", "", "Also check the intermediate steps of this student answer")
}
