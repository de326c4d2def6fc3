package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/crucible/internal/config"
	"github.com/dyluth/crucible/internal/printer"
	"github.com/dyluth/crucible/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchCount        int
	watchFor          string
	watchTimeout      time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream discoveries made in this namespace",
	Long: `Stream new discoveries as any session sharing the namespace makes them.

Streaming needs the redis backend: discoveries are published on
crucible:{namespace}:discovery_events. Pub/Sub is at-most-once, so a
disconnected watcher misses events.

With --for, wait until the named element is in the library instead. This
polls storage and works with the file backend too.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Follow discoveries
  crucible watch

  # Stop after the first five
  crucible watch --count 5 --output json

  # Block until someone discovers Obsidian
  crucible watch --for Obsidian --timeout 10m`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Stop after this many discoveries (0 = until interrupted)")
	watchCmd.Flags().StringVar(&watchFor, "for", "", "Wait for this element to be discovered, then exit")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 5*time.Minute, "How long --for waits")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var format watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		format = watch.OutputFormatDefault
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if watchFor != "" {
		el, err := watch.PollForDiscovery(ctx, a.engine.Library(), watchFor, watchTimeout)
		if err != nil {
			return printer.ErrorWithContext(
				fmt.Sprintf("'%s' was not discovered", watchFor),
				err.Error(),
				map[string]string{"Namespace": a.namespace()},
				nil,
			)
		}
		printer.Element(el, true)
		return nil
	}

	if a.redis == nil {
		return printer.Error(
			"watch needs the redis backend",
			fmt.Sprintf("The %s backend does not publish discoveries.", a.cfg.Storage.Backend),
			[]string{
				"Start a local Redis:\n  crucible store up",
				fmt.Sprintf("Then set storage.backend: redis, or export %s", config.EnvRedisURL),
				"Or wait for a single element with --for, which works with any persistent backend",
			},
		)
	}

	return watch.StreamDiscoveries(ctx, a.redis, a.namespace(), format, watchCount, cmd.OutOrStdout())
}
