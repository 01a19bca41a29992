package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/remote"
	"github.com/lucasnoah/reactorctl/internal/render"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the current or last pipeline run",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := newDeps(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		offline, _ := cmd.Flags().GetBool("offline")
		var m pipeline.Mirror
		if offline {
			var observed string
			m, observed, err = d.store.LoadMirror()
			if err != nil {
				return err
			}
			if observed != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "last observed %s\n", observed)
			}
		} else if m, err = d.poller.Refresh(cmd.Context()); err != nil {
			return err
		}

		model := render.Render(render.FromMirror(m))
		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(statusJSON{Mirror: m, Model: model}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Text(model))
		return nil
	},
}

type statusJSON struct {
	Mirror pipeline.Mirror `json:"mirror"`
	Model  render.Model    `json:"model"`
}

// printPreview writes the artifacts of a finished run.
func printPreview(w io.Writer, lr *remote.LastResult) {
	if lr == nil {
		return
	}
	fmt.Fprintln(w)
	if lr.Script != nil && lr.Script.Hook != "" {
		fmt.Fprintf(w, "Hook:   %s\n", lr.Script.Hook)
	}
	if lr.FinalVideo != "" {
		fmt.Fprintf(w, "Final:  %s\n", lr.FinalVideo)
	}
	if len(lr.Images) > 0 {
		fmt.Fprintf(w, "Images: %d\n", len(lr.Images))
	}
	for i, v := range lr.Videos {
		fmt.Fprintf(w, "Clip %d: %s\n", i, v)
	}
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
	statusCmd.Flags().Bool("offline", false, "Show the last observed state without contacting the server")
}
