package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ObjArchiver/internal/config"
	"ObjArchiver/internal/restore"
)

var (
	restoreTarget string
	restorePrefix string
	restoreDryRun bool
)

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringVar(&restoreTarget, "target", "", "Target directory to extract into (required)")
	restoreCmd.Flags().StringVar(&restorePrefix, "prefix", "", "Extract only entries whose name starts with this prefix")
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "List what would be extracted without writing files")
	restoreCmd.Flags().String("driver", config.DriverS3, "Store client: s3 or minio")
	_ = restoreCmd.MarkFlagRequired("target")
}

var restoreCmd = &cobra.Command{
	Use:   "restore s3://bucket/key",
	Short: "Extract an archive into a local directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, flagBinding{"driver", "driver"})
	if err != nil {
		return err
	}
	loc, err := config.ParseLocation(args[0])
	if err != nil {
		return err
	}
	if loc.Prefix == "" {
		return fmt.Errorf("%w: missing object key in %q", config.ErrInvalidLocation, args[0])
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := restore.Extract(ctx, store, log, loc.Bucket, loc.Prefix, restoreTarget, restore.Options{
		Prefix: restorePrefix,
		DryRun: restoreDryRun,
	})
	if err != nil {
		return fmt.Errorf("restore %s: %w", loc, err)
	}
	cmd.Printf("Restored %d entries (%s) from %s into %s\n", res.Entries, humanize.IBytes(uint64(res.Bytes)), loc, restoreTarget)
	return nil
}
