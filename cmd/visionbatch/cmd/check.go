package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/visionbatch/internal/preflight"
)

func newCheckCommand(a *app) *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check [root]",
		Short: "Inspect the archive without submitting anything",
		Long: `Check lists every group the submit command would see, counts its images
and flags files the service would reject (empty or over the size limit).
With --decode every image is also decoded to catch corrupt files.

Examples:
  visionbatch check /data/archive
  visionbatch check /data/archive --decode --workers 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.validatedConfig(args)
			if err != nil {
				return err
			}

			decode, _ := cmd.Flags().GetBool("decode")
			workers, _ := cmd.Flags().GetInt("workers")
			if workers < 1 {
				workers = cfg.Submit.Workers
			}

			a.logger.Debug("checking archive", "root", cfg.Archive.Root, "decode", decode, "workers", workers)
			summary, err := preflight.Check(cmd.Context(), cfg.Archive.Root, preflight.Options{
				Bucket:         cfg.Remote.Bucket,
				NormalizeNames: cfg.Remote.NormalizeNames,
				Decode:         decode,
				Workers:        workers,
			}, a.logger)
			if err != nil {
				return err
			}

			summary.Print(cmd.OutOrStdout())
			if n := summary.Issues(); n > 0 {
				return fmt.Errorf("%d images would be rejected", n)
			}
			return nil
		},
	}

	checkCmd.Flags().Bool("decode", false, "decode every image to detect corrupt files")
	checkCmd.Flags().Int("workers", 0, "number of images inspected concurrently (default submit.workers)")

	return checkCmd
}
