package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/lucasnoah/reactorctl/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard",
	Long: `Start a browser dashboard on localhost. It follows the pipeline live, shows
the timing of the configured and manual assets, and can start or resume runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

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

		if _, err := d.poller.Attach(cmd.Context()); err != nil {
			d.logger.Warn("initial status fetch failed", "error", err)
		}

		opts := []web.Option{
			web.WithManual(reg),
			web.WithEstimate(configuredEstimate(d.cfg)),
			web.WithLogger(d.logger),
		}
		if d.events != nil {
			opts = append(opts, web.WithEvents(d.events))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cmd.Printf("Dashboard: http://%s\n", displayAddr(addr))
		return web.NewServer(d.poller, addr, opts...).Start(ctx)
	},
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
}
