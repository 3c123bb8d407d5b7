package cmd

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ObjArchiver/cmd.Version=...".
var Version = "dev"

var (
	configPath  string
	envFilePath string
	logLevel    string
	logFormat   string
)

var rootCmd = &cobra.Command{
	Use:   "objarchiver",
	Short: "Consolidate small objects of an S3-compatible store into one archive",
	Long: "Objarchiver lists the objects below a source prefix, streams them into one TAR archive, " +
		"optionally compresses it and uploads it to a destination prefix with a multipart upload.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default $OBJARCHIVER_CONFIG, none if unset)")
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env-file", "", "Dotenv file with store credentials (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or console")
}

func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		return 1
	}
	return 0
}
