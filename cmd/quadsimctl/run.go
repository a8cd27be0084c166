package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"quadsim/pkg/quadsim"
)

func newRunCmd() *cobra.Command {
	var (
		steps      int
		policyName string
		seed       int64
		engine     string
		mode       string
		modelRef   string
		motorForce float64
		frequency  float64
		paceHz     float64
		noPacing   bool
		record     bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulated session and print its state trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := quadsim.RunRequest{
				Engine:        cliCfg.Sim.Engine,
				Mode:          cliCfg.Sim.Mode,
				TimeStep:      cliCfg.Sim.TimeStep,
				GravityZ:      cliCfg.Sim.GravityZ,
				Model:         cliCfg.Drive.Model,
				Policy:        cliCfg.Drive.Policy,
				Steps:         cliCfg.Drive.Steps,
				Seed:          cliCfg.Drive.Seed,
				MotorForce:    cliCfg.Drive.MotorForce,
				PaceHz:        cliCfg.Drive.PaceHz,
				DisablePacing: cliCfg.Drive.NoPacing,
				Record:        cliCfg.Drive.Record,
			}
			flags := cmd.Flags()
			if flags.Changed("steps") {
				req.Steps = steps
			}
			if flags.Changed("policy") {
				req.Policy = policyName
			}
			if flags.Changed("seed") {
				req.Seed = seed
			}
			if flags.Changed("engine") {
				req.Engine = engine
			}
			if flags.Changed("mode") {
				req.Mode = mode
			}
			if flags.Changed("model") {
				req.Model = modelRef
			}
			if flags.Changed("motor-force") {
				req.MotorForce = motorForce
			}
			if flags.Changed("frequency") {
				req.Frequency = frequency
			}
			if flags.Changed("pace-hz") {
				req.PaceHz = paceHz
			}
			if flags.Changed("no-pacing") {
				req.DisablePacing = noPacing
			}
			if flags.Changed("record") {
				req.Record = record
			}
			if quiet {
				req.Output = io.Discard
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer closeClient(client)

			result, err := client.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("run complete run_id=%s steps=%d seed=%d elapsed=%s recorded=%t\n",
				result.RunID, result.Steps, result.Seed, result.Elapsed.Round(roundElapsed), result.Recorded)
			fmt.Printf("distance=%.6f final_x=%.6f final_y=%.6f final_z=%.6f steps_per_sec=%.1f\n",
				result.Distance,
				result.FinalPosition[0],
				result.FinalPosition[1],
				result.FinalPosition[2],
				result.StepsPerSecond)
			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 0, "control iterations to run")
	cmd.Flags().StringVar(&policyName, "policy", "", "action policy: uniform|sine")
	cmd.Flags().Int64Var(&seed, "seed", 0, "rng seed (0 derives one from the clock)")
	cmd.Flags().StringVar(&engine, "engine", "", "physics engine backend")
	cmd.Flags().StringVar(&mode, "mode", "", "connection mode: direct|gui")
	cmd.Flags().StringVar(&modelRef, "model", "", "robot model: builtin:name or file path")
	cmd.Flags().Float64Var(&motorForce, "motor-force", 0, "motor torque cap")
	cmd.Flags().Float64Var(&frequency, "frequency", 0, "gait frequency in Hz for periodic policies")
	cmd.Flags().Float64Var(&paceHz, "pace-hz", 0, "loop pacing rate in steps per second")
	cmd.Flags().BoolVar(&noPacing, "no-pacing", false, "run unpaced, as fast as the host allows")
	cmd.Flags().BoolVar(&record, "record", true, "persist the run, step trace, and summary")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-step state lines")
	return cmd
}
