package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "reactor",
	Short: "reactor — drive the video pipeline from the terminal",
	Long: `reactor starts and follows runs of the remote video generation pipeline,
handles its human review gates (scene prompts, generated clips), and
checks the timing of manually supplied clips, voiceover and CTA.

Configuration is read from ./reactor.yaml or ~/.reactor/config.yaml.
Local state (last observed run, manual assets) lives in ~/.reactor/.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// newLogger returns the diagnostic logger for a command: discarded unless
// --verbose is set, in which case it writes text to stderr.
func newLogger(cmd *cobra.Command) *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log diagnostics to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(videosCmd)
	rootCmd.AddCommand(manualCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}
