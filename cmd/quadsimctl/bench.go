package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quadsim/pkg/quadsim"
)

func newBenchCmd() *cobra.Command {
	var (
		runs       int
		workers    int
		steps      int
		policyName string
		engine     string
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure simulation throughput over repeated runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer closeClient(client)

			base := quadsim.RunRequest{
				Engine:   cliCfg.Sim.Engine,
				TimeStep: cliCfg.Sim.TimeStep,
				GravityZ: cliCfg.Sim.GravityZ,
				Model:    cliCfg.Drive.Model,
				Policy:   cliCfg.Drive.Policy,
				Steps:    cliCfg.Drive.Steps,
				Seed:     cliCfg.Drive.Seed,
			}
			flags := cmd.Flags()
			if flags.Changed("steps") {
				base.Steps = steps
			}
			if flags.Changed("policy") {
				base.Policy = policyName
			}
			if flags.Changed("engine") {
				base.Engine = engine
			}
			if flags.Changed("seed") {
				base.Seed = seed
			}

			summary, err := client.Bench(cmd.Context(), quadsim.BenchRequest{
				Runs:    runs,
				Workers: workers,
				Base:    base,
			})
			if err != nil {
				return err
			}
			fmt.Printf("bench complete runs=%d steps_per_run=%d elapsed=%s\n",
				summary.Runs, summary.StepsPerRun, summary.TotalElapsed.Round(roundElapsed))
			fmt.Printf("steps_per_sec mean=%.1f stddev=%.1f min=%.1f max=%.1f\n",
				summary.MeanStepsPerSecond,
				summary.StdDevStepsPerSecond,
				summary.MinStepsPerSecond,
				summary.MaxStepsPerSecond)
			fmt.Printf("distance mean=%.6f max=%.6f\n",
				summary.MeanDistance, summary.MaxDistance)
			return nil
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 0, "number of benchmark runs")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent benchmark runs")
	cmd.Flags().IntVar(&steps, "steps", 0, "control iterations per run")
	cmd.Flags().StringVar(&policyName, "policy", "", "action policy: uniform|sine")
	cmd.Flags().StringVar(&engine, "engine", "", "physics engine backend")
	cmd.Flags().Int64Var(&seed, "seed", 0, "base rng seed (0 derives one from the clock)")
	return cmd
}
