package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smac-tools/stagebench/internal/db"
	"github.com/smac-tools/stagebench/internal/report"
	"github.com/smac-tools/stagebench/internal/security"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded benchmark runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.NewDB(flagDB)
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := database.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTAGE\tVELOCITY\tACCEL\tLAPS\tAVG mm/s\tSTARTED")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%d/%d\t%.2f\t%s\n",
				run.RunID[:8], run.Stage, run.VelocityMMS, run.AccelerationMMSS,
				run.LapsCompleted, run.Loops, run.AvgSpeedMMS,
				run.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		best, err := database.FastestRun()
		if err != nil {
			return err
		}
		if best != nil {
			fmt.Printf("fastest: %.2f mm/s at v=%.1f a=%.1f (run %s)\n",
				best.AvgSpeedMMS, best.VelocityMMS, best.AccelerationMMSS, best.RunID[:8])
		}
		return nil
	},
}

var chartOut string

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render recorded runs as an HTML chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.NewDB(flagDB)
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := database.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs recorded")
		}

		out := chartOut
		if out == "" {
			out = report.ChartFilename(runs[0].Stage)
		}
		if err := security.ValidateExportPath(out); err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := report.RenderRunsChart(f, runs); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", out)
		return nil
	},
}

func init() {
	chartCmd.Flags().StringVar(&chartOut, "out", "",
		"output HTML path (default derived from the stage name)")

	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(chartCmd)
}
