package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Review generated clips while the pipeline is paused for them",
}

var videosReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List the generated clips staged for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openGate(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := d.gate.LoadVideoReviewPayload(cmd.Context())
		if err != nil {
			return gateError(err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(p, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		for _, c := range p.Clips {
			fmt.Fprintf(cmd.OutOrStdout(), "Clip %d: %s\n", c.Index, c.VideoURL)
		}
		return nil
	},
}

var videosRegenCmd = &cobra.Command{
	Use:   "regen <clip-index>",
	Short: "Regenerate one clip; the pipeline stays paused",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid clip index %q", args[0])
		}
		d, cleanup, err := openGate(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		clip, err := d.gate.RegenerateClip(cmd.Context(), index)
		if err != nil {
			return gateError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Clip %d: %s\n", index, clip.VideoURL)
		return nil
	},
}

var videosApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve all clips and resume",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openGate(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := d.gate.ApproveAllVideos(cmd.Context()); err != nil {
			return gateError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Clips approved, run resumed.")
		return maybeFollow(cmd, d)
	},
}

func init() {
	videosReviewCmd.Flags().String("format", "text", "Output format: text or json")
	videosApproveCmd.Flags().BoolP("follow", "F", false, "Follow progress after resuming")

	videosCmd.AddCommand(videosReviewCmd)
	videosCmd.AddCommand(videosRegenCmd)
	videosCmd.AddCommand(videosApproveCmd)
}
