package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/poller"
	"github.com/lucasnoah/reactorctl/internal/render"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an automatic pipeline run",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := newDeps(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if _, err := d.poller.Refresh(cmd.Context()); err != nil {
			return err
		}
		topic, _ := cmd.Flags().GetString("topic")
		if err := d.poller.Start(cmd.Context(), pipeline.RunRequest{TopicID: topic}); err != nil {
			return runError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Run started.")
		return maybeFollow(cmd, d)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a run that stopped at a review gate or failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := newDeps(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if _, err := d.poller.Refresh(cmd.Context()); err != nil {
			return err
		}
		if err := d.poller.Resume(cmd.Context()); err != nil {
			return runError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Run resumed.")
		return maybeFollow(cmd, d)
	},
}

func runError(err error) error {
	if errors.Is(err, poller.ErrAlreadyRunning) {
		return fmt.Errorf("a run is already in progress (see `reactor status`)")
	}
	return err
}

func maybeFollow(cmd *cobra.Command, d *deps) error {
	if ok, _ := cmd.Flags().GetBool("follow"); !ok {
		return nil
	}
	return follow(cmd, d)
}

// follow streams progress lines until the run stops, then prints the final
// state and any result preview. Interrupting stops following only; the
// remote run is not cancelled.
func follow(cmd *cobra.Command, d *deps) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	d.poller.SetProgress(out)
	if err := d.poller.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(out, "Stopped following; the run continues on the server.")
			return nil
		}
		return err
	}

	fmt.Fprintln(out, render.Text(render.Render(render.FromMirror(d.poller.Mirror()))))
	printPreview(out, d.poller.Preview())
	return nil
}

func init() {
	runCmd.Flags().String("topic", "", "Topic ID to generate (default: next queued topic)")
	runCmd.Flags().BoolP("follow", "F", false, "Follow progress until the run stops")
	resumeCmd.Flags().BoolP("follow", "F", false, "Follow progress until the run stops")
}
