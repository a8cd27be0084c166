package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quadsim/pkg/quadsim"
)

func newReplayCmd() *cobra.Command {
	var (
		runID  string
		latest bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-emit the recorded state lines of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer closeClient(client)

			result, err := client.Replay(cmd.Context(), quadsim.ReplayRequest{
				RunID:  runID,
				Latest: latest,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			fmt.Printf("replayed run_id=%s steps=%d\n", result.RunID, result.Steps)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run id to replay")
	cmd.Flags().BoolVar(&latest, "latest", false, "replay the most recent run")
	cmd.Flags().IntVar(&limit, "limit", 0, "max steps to replay (0 replays all)")
	return cmd
}
