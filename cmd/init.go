package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ObjArchiver/internal/config"
)

var (
	initSrc    string
	initDst    string
	initOutput string
	initForce  bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initSrc, "src", "s3://source-bucket/prefix", "Source location written to the template")
	initCmd.Flags().StringVar(&initDst, "dst", "s3://archive-bucket/prefix", "Destination location written to the template")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "objarchiver.yaml", "Path of the config file to create")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starting configuration file",
	Long:  "Init writes a configuration template with mode 0600. Credentials are not written; set " + config.EnvAccessKey + " and " + config.EnvSecretKey + " or use a .env file.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(initOutput); err == nil && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", initOutput)
	}
	cfg := config.Template(initSrc, initDst)
	if _, err := config.Validate(config.Template(initSrc, initDst)); err != nil {
		return fmt.Errorf("template is invalid: %w", err)
	}
	if err := config.Write(cfg, initOutput); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", initOutput)
	return nil
}
