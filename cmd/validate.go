package cmd

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ObjArchiver/internal/config"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and environment",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res, err := config.Validate(cfg)
	if err != nil {
		return err
	}
	cmd.Printf("source:      %s\n", res.Source)
	cmd.Printf("destination: %s\n", res.Destination)
	if res.HasCutoff {
		cmd.Printf("cutoff:      %s\n", res.Cutoff.Format(time.RFC3339))
	} else {
		cmd.Println("cutoff:      none")
	}
	cmd.Printf("capacity:    %s\n", humanize.IBytes(uint64(res.MaxArchiveBytes(cfg.MaxParts))))
	return nil
}
