package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ObjArchiver/internal/config"
	"ObjArchiver/internal/doctor"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
	f := doctorCmd.Flags()
	f.String("src", "", "Source location, s3://bucket/prefix")
	f.String("dst", "", "Destination location, s3://bucket/prefix")
	f.String("driver", config.DriverS3, "Store client: s3 or minio")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration and access to the source and destination",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd,
		flagBinding{"src", "src"},
		flagBinding{"dst", "dst"},
		flagBinding{"driver", "driver"},
	)
	if err != nil {
		cmd.Printf("Config load: ERROR: %v\n", err)
		return err
	}
	res, err := config.Validate(cfg)
	if err != nil {
		cmd.Printf("Config validate: ERROR: %v\n", err)
		return err
	}

	ctx := context.Background()
	store, err := newStore(ctx, cfg)
	if err != nil {
		cmd.Printf("Store client: ERROR: %v\n", err)
		return err
	}

	results := doctor.Run(ctx, store, cfg, res)
	for _, r := range results {
		status := "OK"
		if !r.OK {
			status = "ERROR"
		}
		cmd.Printf("%-12s %s: %s\n", r.Name, status, r.Detail)
	}
	if doctor.Failed(results) {
		return fmt.Errorf("one or more checks failed; see output above")
	}
	return nil
}
