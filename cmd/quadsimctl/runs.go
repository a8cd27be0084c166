package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"quadsim/pkg/quadsim"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer closeClient(client)

			items, err := client.Runs(cmd.Context(), quadsim.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, item := range items {
				distance := "-"
				if item.Distance != nil {
					distance = fmt.Sprintf("%.6f", *item.Distance)
				}
				fmt.Printf("run_id=%s created_at=%s age=%s engine=%s policy=%s seed=%d steps=%d distance=%s\n",
					item.RunID,
					item.CreatedAt.UTC().Format(time.RFC3339),
					humanize.Time(item.CreatedAt),
					item.Engine,
					item.Policy,
					item.Seed,
					item.Steps,
					distance)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list (0 lists all)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var (
		runID  string
		latest bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a recorded run and its trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer closeClient(client)

			deleted, err := client.Delete(cmd.Context(), quadsim.DeleteRequest{RunID: runID, Latest: latest})
			if err != nil {
				return err
			}
			fmt.Printf("deleted run_id=%s\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run id to delete")
	cmd.Flags().BoolVar(&latest, "latest", false, "delete the most recent run")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer closeClient(client)

			if err := client.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("reset store=%s\n", cliCfg.Store.Backend)
			return nil
		},
	}
}
