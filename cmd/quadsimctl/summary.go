package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quadsim/pkg/quadsim"
)

func newSummaryCmd() *cobra.Command {
	var (
		runID  string
		latest bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the stored summary of a recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer closeClient(client)

			summary, err := client.Summary(cmd.Context(), quadsim.SummaryRequest{RunID: runID, Latest: latest})
			if err != nil {
				return err
			}
			fmt.Printf("run_id=%s steps=%d distance=%.6f\n", summary.RunID, summary.Steps, summary.Distance)
			fmt.Printf("final_x=%.6f final_y=%.6f final_z=%.6f\n",
				summary.FinalPosition[0], summary.FinalPosition[1], summary.FinalPosition[2])
			fmt.Printf("mean_height=%.6f min_height=%.6f max_height=%.6f height_stddev=%.6f\n",
				summary.MeanHeight, summary.MinHeight, summary.MaxHeight, summary.HeightStdDev)
			fmt.Printf("motor_angle_min=%.6f motor_angle_max=%.6f\n", summary.MotorAngleMin, summary.MotorAngleMax)
			if summary.WallClockMS > 0 {
				fmt.Printf("wall_clock_ms=%d steps_per_sec=%.1f\n", summary.WallClockMS, summary.StepsPerSecond)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run id to summarize")
	cmd.Flags().BoolVar(&latest, "latest", false, "summarize the most recent run")
	return cmd
}
