package main

import (
	"fmt"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	uploadMethod string
	uploadRunDir string
)

var uploadRunCmd = &cobra.Command{
	Use:   "upload-run",
	Short: "Archive a run directory to remote storage",
	Long: `Upload a local run directory to S3-compatible storage using the
storage.s3 config settings. The server redirects requests for files that are
no longer on disk to this archive.`,
	RunE: runUploadRun,
}

var remoteRunsFile string

var remoteRunsCmd = &cobra.Command{
	Use:   "remote-runs [run]",
	Short: "List runs archived in remote storage",
	Long: `List the runs archived under storage.s3.prefix. Given a run and --file,
print that file of the archived run instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRemoteRuns,
}

func init() {
	rootCmd.AddCommand(uploadRunCmd)
	uploadRunCmd.Flags().StringVar(&uploadMethod, "method", "s3",
		"Upload method (currently only \"s3\")")
	uploadRunCmd.Flags().StringVar(&uploadRunDir, "run-dir", "",
		"Path to the run directory to upload")

	_ = uploadRunCmd.MarkFlagRequired("run-dir")

	rootCmd.AddCommand(remoteRunsCmd)
	remoteRunsCmd.Flags().StringVar(&remoteRunsFile, "file", "",
		"file inside the run to print, e.g. run_info.json")
}

// s3Config loads the config and checks that S3 storage is enabled.
func s3Config(cmd *cobra.Command) (*config.S3Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("S3 storage is not enabled in config")
	}

	if err := cfg.Storage.S3.Validate(); err != nil {
		return nil, fmt.Errorf("validating storage.s3: %w", err)
	}

	return &cfg.Storage.S3, nil
}

func runUploadRun(cmd *cobra.Command, args []string) error {
	if uploadMethod != "s3" {
		return fmt.Errorf("unsupported method %q (only \"s3\" is supported)", uploadMethod)
	}

	s3Cfg, err := s3Config(cmd)
	if err != nil {
		return err
	}

	uploader, err := upload.NewS3Uploader(log, s3Cfg)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	log.WithField("dir", uploadRunDir).Info("Uploading run")

	if err := uploader.Upload(ctx, uploadRunDir); err != nil {
		return fmt.Errorf("uploading run: %w", err)
	}

	log.Info("Upload completed successfully")

	return nil
}

func runRemoteRuns(cmd *cobra.Command, args []string) error {
	s3Cfg, err := s3Config(cmd)
	if err != nil {
		return err
	}

	reader := upload.NewS3Reader(log, s3Cfg)
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	if len(args) == 1 && remoteRunsFile != "" {
		data, err := reader.GetRunFile(ctx, args[0], remoteRunsFile)
		if err != nil {
			return err
		}

		if data == nil {
			return fmt.Errorf("%s not archived for run %s", remoteRunsFile, args[0])
		}

		_, err = w.Write(data)

		return err
	}

	runs, err := reader.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("listing remote runs: %w", err)
	}

	for _, run := range runs {
		if len(args) == 1 && run != args[0] {
			continue
		}

		_, _ = fmt.Fprintln(w, run)
	}

	return nil
}
