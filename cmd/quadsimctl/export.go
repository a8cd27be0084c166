package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"quadsim/internal/stats"
	"quadsim/pkg/quadsim"
)

func newExportCmd() *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a recorded run as JSON and CSV artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer closeClient(client)

			result, err := client.Export(cmd.Context(), quadsim.ExportRequest{
				RunID:  runID,
				Latest: latest,
				OutDir: outDir,
			})
			if err != nil {
				return err
			}
			fmt.Printf("exported run_id=%s dir=%s steps=%d\n",
				result.RunID, filepath.Clean(result.Directory), result.Steps)

			if verify {
				return verifyArtifacts(filepath.Dir(result.Directory), result.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run id to export")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&verify, "verify", false, "read the artifacts back and check they decode")
	return cmd
}

// verifyArtifacts re-reads what export just wrote and reports what
// decoded.
func verifyArtifacts(baseDir, runID string) error {
	run, ok, err := stats.ReadRunRecord(baseDir, runID)
	if err != nil {
		return fmt.Errorf("verify run record: %w", err)
	}
	if !ok || run.ID != runID {
		return fmt.Errorf("verify run record: missing or mismatched for %s", runID)
	}
	summary, ok, err := stats.ReadRunSummary(baseDir, runID)
	if err != nil {
		return fmt.Errorf("verify summary: %w", err)
	}
	if !ok {
		return fmt.Errorf("verify summary: missing for %s", runID)
	}
	positions, ok, err := stats.ReadStepSeries(baseDir, runID)
	if err != nil {
		return fmt.Errorf("verify step series: %w", err)
	}
	if !ok {
		return fmt.Errorf("verify step series: missing for %s", runID)
	}
	series, hasSeries, err := stats.ReadTrajectorySeries(baseDir, runID)
	if err != nil {
		return fmt.Errorf("verify trajectory series: %w", err)
	}

	fmt.Printf("verified run_id=%s summary_steps=%d positions=%d", runID, summary.Steps, len(positions))
	if hasSeries {
		fmt.Printf(" series_points=%d stride=%d", len(series.Height), series.Stride)
	}
	fmt.Println()
	return nil
}
