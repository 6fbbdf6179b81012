package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"urlfilter/pkg/browser"
	"urlfilter/pkg/config"
	"urlfilter/pkg/dispatch"
	"urlfilter/pkg/filtering"
	"urlfilter/pkg/intake"
	"urlfilter/pkg/logger"
	"urlfilter/pkg/metrics"
	"urlfilter/pkg/remoteconfig"
	"urlfilter/pkg/server"
	"urlfilter/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "urlfilter",
		Short:         "Redirect restricted browser addresses and guard the accessibility settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Setup(cmd.Flags())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				return err
			}

			logFile := cfg.Logging.File
			if cfg.Dispatch.Mode == config.DispatchStdout && logFile == "stdout" {
				// stdout carries the command stream
				logFile = "stderr"
			}
			log, closer, err := logger.Setup(cfg.Logging.Level, logFile)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			if err := run(ctx, cfg, log, cmd.InOrStdin(), cmd.OutOrStdout(), hup); err != nil {
				log.Error("url filter stopped", "error", err)
				return err
			}
			log.Info("url filter stopped")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to the configuration file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	root.Flags().String("dispatch", config.DispatchStdout, "command dispatch mode (stdout, adb)")

	root.AddCommand(newBrowsersCmd(), newVersionCmd())
	return root
}

func newBrowsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browsers",
		Short: "List supported browsers and the observed apps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Setup(cmd.Flags())
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range registry.All() {
				fmt.Fprintf(out, "%s %s\n", b.AppID, b.AddressElementID)
			}
			fmt.Fprintf(out, "observed: %v\n", registry.ObservedApps(cfg.Settings.AppID))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.URLFilterVersion)
		},
	}
}

func buildRegistry(cfg *config.Config, log *slog.Logger) (*browser.Registry, error) {
	if cfg.Browsers.ExtraFile == "" {
		return browser.Default(), nil
	}
	extra, err := browser.LoadFile(cfg.Browsers.ExtraFile, log)
	if err != nil {
		return nil, fmt.Errorf("load browsers file: %w", err)
	}
	return browser.NewRegistry(browser.Builtin, extra), nil
}

func buildDispatcher(cfg *config.Config, out io.Writer, log *slog.Logger) dispatch.Dispatcher {
	if cfg.Dispatch.Mode == config.DispatchADB {
		return dispatch.NewADB(cfg.Dispatch.ADBPath, cfg.Dispatch.Serial, log)
	}
	return dispatch.NewWriter(out)
}

// run wires the filter and blocks until ctx is done or, when events are read
// from in, the stream ends.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger, in io.Reader, out io.Writer, hup <-chan os.Signal) error {
	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}

	memory, err := filtering.NewMemory(cfg.Detection.Capacity)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := filtering.NewStore(cfg.Defaults.FilterConfig())
	engine, err := filtering.NewEngine(filtering.Options{
		Registry:        registry,
		Config:          store,
		Memory:          memory,
		Dispatcher:      buildDispatcher(cfg, out, log),
		SettingsApp:     cfg.Settings.AppID,
		LockLabel:       cfg.Settings.LockLabel,
		Window:          cfg.Detection.Window,
		RedirectLogPath: cfg.Logging.RedirectLog,
		Metrics:         m,
		Log:             log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("failed to close engine", "error", err)
		}
	}()

	watcher := remoteconfig.NewWatcher(remoteconfig.Options{
		Source: remoteconfig.Source{
			Location: cfg.Remote.Location,
			Auth: remoteconfig.AuthConfig{
				Username: cfg.Remote.Username,
				Password: cfg.Remote.Password,
				Token:    cfg.Remote.Token,
				Header:   cfg.Remote.Header,
				Scheme:   cfg.Remote.Scheme,
			},
		},
		CacheDir:       cfg.Remote.CacheDir,
		UpdateInterval: cfg.Remote.UpdateInterval,
		Store:          store,
		Metrics:        m,
		Log:            log,
		OnUpdate: func(keys []string) {
			log.Debug("filter configuration swapped", "keys", keys)
		},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return watcher.Run(ctx) })

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				log.Info("received SIGHUP signal, refreshing remote config")
				watcher.Trigger()
			}
		}
	})

	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return metrics.Serve(ctx, cfg.Metrics.Listen, reg, log) })
	}

	log.Info("url filter started",
		"version", version.URLFilterVersion,
		"browsers", registry.Len(),
		"observed", registry.ObservedApps(cfg.Settings.AppID),
		"dispatch", cfg.Dispatch.Mode)

	handle := func(ctx context.Context, ev filtering.Event) {
		d := engine.Handle(ctx, ev)
		log.Debug("event handled", "app", ev.AppID, "outcome", d.Outcome, "reason", d.Reason)
	}

	if cfg.Server.Listen != "" {
		srv := server.New(cfg.Server.Listen, handle, log)
		if err := srv.Start(ctx); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		if c, ok := in.(io.Closer); ok {
			// unblock a pending read on shutdown
			g.Go(func() error {
				<-ctx.Done()
				_ = c.Close()
				return nil
			})
		}
		g.Go(func() error {
			defer cancel()
			err := intake.Decode(ctx, in, log, func(ev filtering.Event) { handle(ctx, ev) })
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
