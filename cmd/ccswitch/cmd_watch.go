package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/metrics"
	"github.com/ruminaider/ccswitch/internal/tray"
	"github.com/ruminaider/ccswitch/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var metricsListenFlag string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the live profile menu and follow registry changes",
	Long: `Prints the profile menu of every tool and reprints it whenever a profile
is switched or a registry file changes on disk. With a metrics address set,
switch and conflict counters are served at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		model := tray.New(svc.Store())
		model.OnChange(func(menu tray.Menu) {
			fmt.Println(tray.Render(menu))
		})
		unsubscribe := model.Attach(svc.Hub())
		defer unsubscribe()

		if err := model.RefreshAll(); err != nil {
			log.Warn().Err(err).Msg("some registries could not be read")
		}

		watcher, err := watch.NewRegistryWatcher(svc.Store().Dir(), svc.Hub(), 0)
		if err != nil {
			return err
		}

		addr := metricsListenFlag
		if !cmd.Flags().Changed("metrics-listen") {
			addr = settings.Metrics.Listen
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
		if addr != "" {
			g.Go(func() error {
				return metrics.Default().Serve(gctx, addr)
			})
			g.Go(func() error {
				// Refresh the conflict gauges once so the endpoint is not empty.
				_, err := svc.ScanAllConflicts(gctx)
				if err != nil && gctx.Err() == nil {
					log.Warn().Err(err).Msg("initial conflict scan failed")
				}
				return nil
			})
		}

		fmt.Fprintln(os.Stderr, "Watching for changes (Ctrl+C to stop)...")
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&metricsListenFlag, "metrics-listen", "", "Serve Prometheus metrics on this address (default from settings; empty disables)")
}
