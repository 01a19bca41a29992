package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/lucasnoah/reactorctl/internal/gate"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Review and edit scene prompts while the pipeline is paused for them",
}

var promptsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the staged scene prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openGate(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := d.gate.LoadPromptEditPayload(cmd.Context())
		if err != nil {
			return gateError(err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(p, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		if p.Script != "" {
			fmt.Fprintf(w, "Script:\n  %s\n\n", p.Script)
		}
		for _, c := range p.Clips {
			fmt.Fprintf(w, "Clip %d\n", c.Index)
			fmt.Fprintf(w, "  image:  %s\n", c.ImagePrompt)
			fmt.Fprintf(w, "  motion: %s\n", c.MotionPrompt)
		}
		return nil
	},
}

var promptsEditCmd = &cobra.Command{
	Use:   "edit <clip-index>",
	Short: "Change one clip's prompts, then approve and resume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid clip index %q", args[0])
		}
		var edit gate.PromptEdit
		if cmd.Flags().Changed("image") {
			v, _ := cmd.Flags().GetString("image")
			edit.ImagePrompt = &v
		}
		if cmd.Flags().Changed("motion") {
			v, _ := cmd.Flags().GetString("motion")
			edit.MotionPrompt = &v
		}
		if edit.ImagePrompt == nil && edit.MotionPrompt == nil {
			return fmt.Errorf("nothing to change: pass --image and/or --motion")
		}
		return savePrompts(cmd, map[int]gate.PromptEdit{index: edit})
	},
}

var promptsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Approve the staged prompts (optionally with edits from a file) and resume",
	Long: `Approve the staged prompts and resume the pipeline. With --file, edits are
read from YAML first:

  - index: 0
    image_prompt: "a lighthouse at dusk"
  - index: 2
    motion_prompt: "slow dolly in"

Clips not listed keep their staged prompts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		edits := map[int]gate.PromptEdit{}
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			var err error
			if edits, err = loadPromptEdits(path); err != nil {
				return err
			}
		}
		return savePrompts(cmd, edits)
	},
}

type promptEditFile struct {
	Index        int     `yaml:"index"`
	ImagePrompt  *string `yaml:"image_prompt"`
	MotionPrompt *string `yaml:"motion_prompt"`
}

func loadPromptEdits(path string) (map[int]gate.PromptEdit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read edits: %w", err)
	}
	var entries []promptEditFile
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse edits: %w", err)
	}
	edits := make(map[int]gate.PromptEdit, len(entries))
	for _, e := range entries {
		edits[e.Index] = gate.PromptEdit{ImagePrompt: e.ImagePrompt, MotionPrompt: e.MotionPrompt}
	}
	return edits, nil
}

func savePrompts(cmd *cobra.Command, edits map[int]gate.PromptEdit) error {
	d, cleanup, err := openGate(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := d.gate.SavePrompts(cmd.Context(), edits); err != nil {
		return gateError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Prompts approved, run resumed.")
	return maybeFollow(cmd, d)
}

// openGate wires deps and refreshes the mirror so the gate machine sees
// the current checkpoint.
func openGate(cmd *cobra.Command) (*deps, func(), error) {
	d, cleanup, err := newDeps(cmd)
	if err != nil {
		return nil, nil, err
	}
	if _, err := d.poller.Refresh(cmd.Context()); err != nil {
		cleanup()
		return nil, nil, err
	}
	return d, cleanup, nil
}

func gateError(err error) error {
	var resumeErr *gate.ResumeError
	switch {
	case errors.As(err, &resumeErr):
		return fmt.Errorf("approved, but resuming failed: %w (retry with `reactor resume`)", resumeErr.Err)
	case errors.Is(err, gate.ErrNotGated):
		return fmt.Errorf("%w (see `reactor status`)", err)
	}
	return err
}

func init() {
	promptsShowCmd.Flags().String("format", "text", "Output format: text or json")
	promptsEditCmd.Flags().String("image", "", "New image prompt")
	promptsEditCmd.Flags().String("motion", "", "New motion prompt")
	promptsEditCmd.Flags().BoolP("follow", "F", false, "Follow progress after resuming")
	promptsSaveCmd.Flags().StringP("file", "f", "", "YAML file of prompt edits")
	promptsSaveCmd.Flags().BoolP("follow", "F", false, "Follow progress after resuming")

	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsEditCmd)
	promptsCmd.AddCommand(promptsSaveCmd)
}
