// Package commands defines the pakctl CLI surface.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pakctl/internal/config"
	"git.home.luguber.info/inful/pakctl/internal/controller"
	"git.home.luguber.info/inful/pakctl/internal/journal"
	"git.home.luguber.info/inful/pakctl/internal/logfields"
	"git.home.luguber.info/inful/pakctl/internal/metrics"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
	"git.home.luguber.info/inful/pakctl/internal/progress"
	"git.home.luguber.info/inful/pakctl/internal/store"
	"git.home.luguber.info/inful/pakctl/internal/updates"
	"git.home.luguber.info/inful/pakctl/internal/view"
	"git.home.luguber.info/inful/pakctl/internal/watch"
)

// Global context passed to subcommands.
type Global struct {
	Root *CLI
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"pakctl.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Info    InfoCmd    `cmd:"" help:"Show local and catalog data for a package"`
	List    ListCmd    `cmd:"" help:"List installed packages"`
	Install InstallCmd `cmd:"" help:"Install a package and wait for the change to finish"`
	Refresh RefreshCmd `cmd:"" help:"Refresh a package to its selected channel"`
	Remove  RemoveCmd  `cmd:"" help:"Remove a package"`
	Cancel  CancelCmd  `cmd:"" help:"Abort a package's in-flight change"`
	Switch  SwitchCmd  `cmd:"" help:"Select the channel used by install and refresh"`
	Changes ChangesCmd `cmd:"" help:"List the daemon's changes for a package"`
	Watch   WatchCmd   `cmd:"" help:"Stream aggregate progress of in-flight changes"`
	Monitor MonitorCmd `cmd:"" help:"Run the monitoring endpoint and periodic update checks"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		// Commands will surface the config error; default logging until then.
		cfg = &config.Config{}
	}

	level := slog.LevelInfo
	switch config.NormalizeLogLevel(cfg.Logging.Level) {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if c.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if config.NormalizeLogFormat(cfg.Logging.Format) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// Runtime bundles the wired components commands run against.
type Runtime struct {
	Config     *config.Config
	Client     pakd.Client
	Streams    pakd.ChangeStreamer
	Store      *store.Store
	Controller *controller.Controller
	View       *view.CachedView
	Progress   *progress.Aggregator
	Journal    journal.Store
	Recorder   *metrics.PrometheusRecorder
	Registry   *prom.Registry

	closers []func() error
}

// BuildRuntime loads the configuration and wires the full component graph.
// Call Close when done.
func (g *Global) BuildRuntime() (*Runtime, error) {
	cfg, err := config.Load(g.Root.Config)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg}

	client := pakd.NewHTTPClient(cfg.Daemon.Socket)
	rt.Client = client
	rt.Streams = client

	if cfg.Daemon.Transport == config.TransportNATS {
		streamer, err := pakd.NewNATSStreamer(cfg.Daemon.NATS.URL, cfg.Daemon.NATS.SubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to connect change stream broker: %w", err)
		}
		rt.Streams = streamer
		rt.closers = append(rt.closers, streamer.Close)
	}

	journalStore, err := journal.NewSQLiteStore(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open change journal: %w", err)
	}
	rt.Journal = journalStore
	rt.closers = append(rt.closers, journalStore.Close)

	rt.Registry = prom.NewRegistry()
	rt.Recorder = metrics.NewPrometheusRecorder(rt.Registry)

	watcher := watch.New(rt.Streams)
	watcher.SetJournal(rt.Journal)
	watcher.SetRecorder(rt.Recorder)

	rt.Store = store.New(client, watcher, updates.NewChecker(), cfg.Packages.DefaultChannel)
	rt.View = view.NewCached(client)

	rt.Controller = controller.New(client, rt.Store, watcher, rt.View)
	rt.Controller.SetRecorder(rt.Recorder)

	rt.Progress = progress.New(rt.Streams)
	rt.Progress.SetRecorder(rt.Recorder)

	return rt, nil
}

// Close releases the runtime's transports and stores.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			slog.Warn("Failed to close runtime component", logfields.Error(err))
		}
	}
}

// acquire loads a package's record, failing fast when the build failed.
func acquire(ctx context.Context, rt *Runtime, name string) (store.State, error) {
	st := rt.Store.Acquire(ctx, name)
	if st.Phase == store.PhaseFailed {
		return st, st.Err
	}
	return st, nil
}
