package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/cometsong/mbiome-dataplots/pkg/runinfo"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <run-dir>",
	Short: "Print the run summary record as JSON",
	Long: `Build the summary record of a run directory from its QC report and run
metrics, refresh the run_info.json sidecar when it is incomplete, and print
the record.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	runDir := args[0]

	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a run directory", runDir)
	}

	builder := runinfo.NewBuilder(log, cfg, cfg.Owner())

	rec, diags := builder.Build(runDir)
	reports.LogDiagnostics(log.WithField("run", runDir), diags)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	return nil
}
