package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/lucasnoah/reactorctl/internal/manual"
	"github.com/lucasnoah/reactorctl/internal/remote"
	"github.com/lucasnoah/reactorctl/internal/storage"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload local media and print the public URLs",
	Long: `Upload local media files and print their public URLs. By default files go
through the pipeline server; with --direct they are put straight into the
configured bucket.

With --as the URLs are also stored in the manual slots: "clips" fills clip
slots in order from 0, "voiceover" and "cta" take a single file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, _ := cmd.Flags().GetString("as")
		switch as {
		case "", "clips":
		case "voiceover", "cta":
			if len(args) != 1 {
				return fmt.Errorf("--as %s takes exactly one file", as)
			}
		default:
			return fmt.Errorf("--as must be clips, voiceover or cta")
		}
		if as == "clips" && len(args) > manual.MaxSlots {
			return fmt.Errorf("at most %d clips", manual.MaxSlots)
		}

		d, cleanup, err := newDeps(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		var up storage.FileUploader = serverUploader{d.client}
		if direct, _ := cmd.Flags().GetBool("direct"); direct {
			u, err := storage.New(cmd.Context(), d.cfg.Storage, storage.WithLogger(d.logger))
			if err != nil {
				return err
			}
			up = u
		}

		urls, err := storage.UploadAll(cmd.Context(), up, args)
		if err != nil {
			return err
		}
		for i, u := range urls {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", args[i], u)
		}
		if as == "" {
			return nil
		}

		reg, err := openRegistry(d)
		if err != nil {
			return err
		}
		defer reg.Close()
		if err := assignUploads(reg, as, urls); err != nil {
			return err
		}
		if err := saveRegistry(d, reg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		printManual(cmd.OutOrStdout(), reg.View())
		return nil
	},
}

func assignUploads(reg *manual.Registry, as string, urls []string) error {
	switch as {
	case "voiceover":
		reg.SetVoiceoverURL(urls[0])
	case "cta":
		reg.SetCtaURL(urls[0])
	case "clips":
		for len(reg.View().Clips) < len(urls) {
			if err := reg.AddSlot(); err != nil {
				return err
			}
		}
		for i, u := range urls {
			if err := reg.SetClipURL(i, u); err != nil {
				return err
			}
		}
	}
	return nil
}

// serverUploader sends files through the pipeline server's upload endpoint.
type serverUploader struct {
	client *remote.Client
}

func (s serverUploader) UploadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return s.client.Upload(ctx, path, data)
}

func init() {
	uploadCmd.Flags().Bool("direct", false, "Upload straight to the configured bucket")
	uploadCmd.Flags().String("as", "", "Also store the URLs as manual assets: clips, voiceover or cta")
}
