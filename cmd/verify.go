package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ObjArchiver/internal/config"
	"ObjArchiver/internal/restore"
)

var verifyList bool

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyList, "list", false, "Print every entry while verifying")
	verifyCmd.Flags().String("driver", config.DriverS3, "Store client: s3 or minio")
}

var verifyCmd = &cobra.Command{
	Use:   "verify s3://bucket/key",
	Short: "Download an archive and check that it decodes",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
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

	ctx := context.Background()
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	res, err := restore.Walk(ctx, store, loc.Bucket, loc.Prefix, func(e restore.Entry, _ io.Reader) error {
		if verifyList {
			fmt.Fprintf(out, "%10s  %s  %s\n", humanize.IBytes(uint64(e.Size)), e.ModTime.UTC().Format(time.RFC3339), e.Name)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("verify %s: %w", loc, err)
	}
	cmd.Printf("%s OK: %d entries, %s\n", loc, res.Entries, humanize.IBytes(uint64(res.Bytes)))
	return nil
}
