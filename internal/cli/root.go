package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eid-tools/dds-hashcode/internal/logger"
	"github.com/eid-tools/dds-hashcode/internal/version"
)

var (
	logLevel  string
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "dds-hashcode",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "Offline BDOC and DDOC hashcode container tool",
	Long: `dds-hashcode inspects containers and converts them between the full form and the hashcode form
used with DigiDocService. No network access is needed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appLogger = logger.InitLoggerWithWriter(cmd.ErrOrStderr(), logger.ParseLogLevel(logLevel), "dev")
		return nil
	},
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(nextIDCmd)
}
