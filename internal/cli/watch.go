package cli

import (
	"github.com/lucasnoah/reactorctl/internal/tui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the pipeline in a live terminal view",
	Long: `Open a full-screen view of the pipeline phases. The view follows the current
run, shows the review banner when the pipeline pauses, and resumes a stopped
run with 'r'. Press 'q' to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := newDeps(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if _, err := d.poller.Attach(cmd.Context()); err != nil {
			d.logger.Warn("initial status fetch failed", "error", err)
		}
		exit, _ := cmd.Flags().GetBool("exit")
		return tui.Run(d.poller, exit)
	},
}

func init() {
	watchCmd.Flags().Bool("exit", false, "Quit when the run stops")
}
