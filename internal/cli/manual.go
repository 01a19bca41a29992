package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/lucasnoah/reactorctl/internal/manual"
	"github.com/spf13/cobra"
)

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Manage manually supplied clips, voiceover and CTA",
	Long: `Manage the asset URLs for a manual run. Every URL change probes the media
duration and re-checks how the clips, voiceover and CTA line up. Slots are
numbered from 0 and saved in ~/.reactor/manual.json between commands.`,
}

var manualShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the manual asset slots and their timing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(d *deps, reg *manual.Registry) error {
			if ok, _ := cmd.Flags().GetBool("probe"); ok {
				if err := reg.ProbeAll(cmd.Context()); err != nil {
					return fmt.Errorf("probe: %w", err)
				}
			}
			format, _ := cmd.Flags().GetString("format")
			if format == "json" {
				data, _ := json.MarshalIndent(reg.View(), "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printManual(cmd.OutOrStdout(), reg.View())
			return nil
		})
	},
}

var manualSetClipCmd = &cobra.Command{
	Use:   "set-clip <slot> <url>",
	Short: "Set the URL of a clip slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid slot %q", args[0])
		}
		return mutateRegistry(cmd, func(reg *manual.Registry) error {
			return reg.SetClipURL(slot, args[1])
		})
	},
}

var manualSetVoiceoverCmd = &cobra.Command{
	Use:   "set-voiceover <url>",
	Short: "Set the voiceover URL (empty to clear)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateRegistry(cmd, func(reg *manual.Registry) error {
			reg.SetVoiceoverURL(args[0])
			return nil
		})
	},
}

var manualSetCtaCmd = &cobra.Command{
	Use:   "set-cta <url>",
	Short: "Set the CTA clip URL (empty to clear)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateRegistry(cmd, func(reg *manual.Registry) error {
			reg.SetCtaURL(args[0])
			return nil
		})
	},
}

var manualAddSlotCmd = &cobra.Command{
	Use:   "add-slot",
	Short: "Append an empty clip slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateRegistry(cmd, func(reg *manual.Registry) error {
			return reg.AddSlot()
		})
	},
}

var manualRemoveSlotCmd = &cobra.Command{
	Use:   "remove-slot <slot>",
	Short: "Remove a clip slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid slot %q", args[0])
		}
		return mutateRegistry(cmd, func(reg *manual.Registry) error {
			return reg.RemoveSlot(slot)
		})
	},
}

var manualEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the timing of an automatic run from the render settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		r := cfg.Render
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%d clips × %.0fs, ~%d words of narration", r.ClipCount, r.ClipDuration, r.TargetWords)
		if r.CtaOn() {
			fmt.Fprintf(w, ", %.0fs CTA", r.CtaDuration)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, configuredEstimate(cfg).String())
		return nil
	},
}

var manualRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a run with the manual assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(d *deps, reg *manual.Registry) error {
			req, err := reg.RunRequest()
			if err != nil {
				return err
			}
			if _, err := d.poller.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := d.poller.Start(cmd.Context(), req); err != nil {
				return runError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Manual run started with %d clip(s).\n", len(req.Manual.Clips))
			fmt.Fprintln(cmd.OutOrStdout(), reg.Report().String())
			return maybeFollow(cmd, d)
		})
	},
}

var manualWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Apply an asset manifest and re-apply it on every change",
	Long: `Apply a YAML manifest to the manual slots and keep it applied: each time the
file is saved the changed URLs are probed and the timing is re-checked.

  clips:
    - https://cdn.example.com/clip1.mp4
    - https://cdn.example.com/clip2.mp4
  voiceover: https://cdn.example.com/voice.mp3
  cta: https://cdn.example.com/cta.mp4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		d, cleanup, err := newDeps(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		var (
			mu   sync.Mutex
			last string
		)
		out := cmd.OutOrStdout()
		reg, err := openRegistry(d, manual.WithOnChange(func(v manual.View) {
			line := v.Report.String()
			mu.Lock()
			defer mu.Unlock()
			if line != last {
				fmt.Fprintln(out, line)
				last = line
			}
		}))
		if err != nil {
			return err
		}
		defer reg.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", path)
		err = reg.Watch(ctx, path, func(err error) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(cmd.ErrOrStderr(), "manifest: %v\n", err)
		})
		if saveErr := saveRegistry(d, reg); saveErr != nil && err == nil {
			err = saveErr
		}
		return err
	},
}

// withRegistry wires deps and the saved registry, runs fn, and closes both.
func withRegistry(cmd *cobra.Command, fn func(d *deps, reg *manual.Registry) error) error {
	d, cleanup, err := newDeps(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	reg, err := openRegistry(d)
	if err != nil {
		return err
	}
	defer reg.Close()
	return fn(d, reg)
}

// mutateRegistry applies fn, waits for probes, saves and prints the result.
func mutateRegistry(cmd *cobra.Command, fn func(reg *manual.Registry) error) error {
	return withRegistry(cmd, func(d *deps, reg *manual.Registry) error {
		if err := fn(reg); err != nil {
			return err
		}
		if err := saveRegistry(d, reg); err != nil {
			return err
		}
		printManual(cmd.OutOrStdout(), reg.View())
		return nil
	})
}

func printManual(w io.Writer, v manual.View) {
	for i, s := range v.Clips {
		printSlot(w, fmt.Sprintf("clip %d", i), s)
	}
	printSlot(w, "voiceover", v.Voiceover)
	printSlot(w, "cta", v.Cta)
	fmt.Fprintln(w)
	fmt.Fprintln(w, v.Report.String())
}

func printSlot(w io.Writer, label string, s manual.Slot) {
	switch {
	case s.URL == "":
		fmt.Fprintf(w, "  %-10s -\n", label)
	case !s.Resolved():
		fmt.Fprintf(w, "  %-10s %s (invalid URL, ignored)\n", label, s.URL)
	case s.Pending:
		fmt.Fprintf(w, "  %-10s %s (probing)\n", label, s.URL)
	default:
		fmt.Fprintf(w, "  %-10s %s (%s)\n", label, s.URL, s.Duration)
	}
}

func init() {
	manualShowCmd.Flags().Bool("probe", false, "Re-probe every slot before showing")
	manualShowCmd.Flags().String("format", "text", "Output format: text or json")
	manualRunCmd.Flags().BoolP("follow", "F", false, "Follow progress until the run stops")
	manualWatchCmd.Flags().StringP("file", "f", "assets.yaml", "Manifest file to watch")

	manualCmd.AddCommand(manualShowCmd)
	manualCmd.AddCommand(manualSetClipCmd)
	manualCmd.AddCommand(manualSetVoiceoverCmd)
	manualCmd.AddCommand(manualSetCtaCmd)
	manualCmd.AddCommand(manualAddSlotCmd)
	manualCmd.AddCommand(manualRemoveSlotCmd)
	manualCmd.AddCommand(manualEstimateCmd)
	manualCmd.AddCommand(manualRunCmd)
	manualCmd.AddCommand(manualWatchCmd)
}
