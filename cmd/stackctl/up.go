// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stackctl/internal/orchestrator"
	"stackctl/internal/watch"
)

// upFlagValues holds the flags of `stackctl up`.
type upFlagValues struct {
	noBuild     bool
	rebuild     bool
	attach      string
	watch       bool
	timeout     time.Duration
	metricsAddr string
}

func newUpCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &upFlagValues{}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Provision and start the stack",
		Long: `Provision and start the stack.

The network and named volumes are created, images are built or pulled, and
services are started in dependency order. A dependent only starts once each
dependency meets its condition (started, healthy or completed successfully).
Services stay running in the background unless --attach or --watch is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd, app, rootFlags, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.noBuild, "no-build", false, "use existing images; fail when a built image is missing")
	cmd.Flags().BoolVar(&flags.rebuild, "build", false, "rebuild images even when they are up to date")
	cmd.Flags().StringVar(&flags.attach, "attach", "", "follow SERVICE's output and exit with its exit code")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "restart services when their bind-mounted source changes")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "readiness timeout per dependency (default from config, 60s)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	cmd.MarkFlagsMutuallyExclusive("no-build", "build")
	cmd.MarkFlagsMutuallyExclusive("attach", "watch")

	return cmd
}

func runUp(cmd *cobra.Command, app *App, rootFlags *rootFlagValues, flags *upFlagValues) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := app.open(ctx, rootFlags, engineRequired)
	if err != nil {
		return renderFailure(cmd, app.stderr, err, verboseOf(s, rootFlags))
	}
	fail := func(err error) error { return renderFailure(cmd, app.stderr, err, s.verbose) }

	opts := s.upOptions(flags.noBuild, flags.rebuild)
	if flags.timeout > 0 {
		opts.Timeout = flags.timeout
	}

	if flags.metricsAddr != "" {
		addr, errCh, err := s.orch.Metrics().Serve(ctx, flags.metricsAddr)
		if err != nil {
			return fail(err)
		}
		s.logger.Info("serving metrics", "url", "http://"+addr.String()+"/metrics")
		go func() {
			for err := range errCh {
				s.logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	if err := s.orch.Up(ctx, s.stack, opts); err != nil {
		return fail(err)
	}
	fmt.Fprintf(app.stdout, "%s Stack %s is up\n", SuccessStyle.Render("✓"), CmdStyle.Render(s.stack.ProjectName()))

	switch {
	case flags.attach != "":
		code, err := s.orch.Attach(ctx, s.stack, flags.attach)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fail(err)
		}
		if code != 0 {
			fmt.Fprintf(app.stderr, "%s %s exited with code %d\n", WarningStyle.Render("!"), flags.attach, code)
			return renderFailure(cmd, app.stderr, &ExitError{Code: code}, s.verbose)
		}
		return nil

	case flags.watch:
		if err := watchServices(ctx, app, s, opts); err != nil {
			return fail(err)
		}
		return nil

	case flags.metricsAddr != "":
		// Keep the endpoint up until interrupted.
		fmt.Fprintf(app.stdout, "%s\n", SubtitleStyle.Render("Serving metrics (Ctrl+C to stop)..."))
		<-ctx.Done()
		return nil
	}

	return nil
}

// watchServices watches the source tree of every service that bind-mounts
// one and restarts the service on change. It blocks until ctx is done or a
// watcher fails.
func watchServices(ctx context.Context, app *App, s *session, opts orchestrator.UpOptions) error {
	var watchers []*watch.Watcher
	for _, name := range s.stack.ServiceNames() {
		cfg, err := watch.ForService(s.stack, name, s.orch, opts)
		if errors.Is(err, watch.ErrNoSourceTree) {
			continue
		}
		if err != nil {
			return err
		}
		cfg.Logger = s.logger.With("service", name)
		w, err := watch.New(cfg)
		if err != nil {
			return fmt.Errorf("watch %s: %w", name, err)
		}
		fmt.Fprintf(app.stdout, "%s Watching %s for %s\n", CmdStyle.Render("→"), cfg.BaseDir, name)
		watchers = append(watchers, w)
	}
	if len(watchers) == 0 {
		return fmt.Errorf("%w: no service bind-mounts a source directory", watch.ErrNoSourceTree)
	}
	fmt.Fprintf(app.stdout, "\n%s\n", SubtitleStyle.Render("Watching for changes (Ctrl+C to stop)..."))

	// A failed watcher stops the others; the stack keeps running.
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range watchers {
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// verboseOf returns the effective verbosity, also when open failed early.
func verboseOf(s *session, flags *rootFlagValues) bool {
	if s != nil {
		return s.verbose
	}
	return flags.verbose
}
