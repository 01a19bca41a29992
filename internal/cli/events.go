package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/reactorctl/internal/db"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded run events",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		if kind != "" && !db.ValidKind(kind) {
			return fmt.Errorf("unknown event kind %q", kind)
		}

		if since, _ := cmd.Flags().GetDuration("summary"); since > 0 {
			counts, err := d.CountByKind(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			for _, k := range db.Kinds {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %d\n", k, counts[k])
			}
			return nil
		}

		events, err := d.RecentEvents(cmd.Context(), kind, limit)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(events, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-20s %-18s %s\n", "TIME", "KIND", "DETAIL")
		fmt.Fprintf(w, "%-20s %-18s %s\n", strings.Repeat("-", 20), strings.Repeat("-", 18), strings.Repeat("-", 6))
		for _, e := range events {
			fmt.Fprintf(w, "%-20s %-18s %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Detail)
		}
		return nil
	},
}

// openDB connects to the configured event log and migrates it.
func openDB(cmd *cobra.Command) (*db.DB, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("no database configured (set database.url or REACTOR_DATABASE_URL)")
	}
	d, err := openEvents(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

func init() {
	eventsCmd.Flags().String("kind", "", "Only show events of this kind")
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events")
	eventsCmd.Flags().String("format", "text", "Output format: text or json")
	eventsCmd.Flags().Duration("summary", 0, "Count events by kind over this window instead of listing")
}
