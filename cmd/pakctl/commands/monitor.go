package commands

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pakctl/internal/config"
	"git.home.luguber.info/inful/pakctl/internal/logfields"
	"git.home.luguber.info/inful/pakctl/internal/monitor"
	"git.home.luguber.info/inful/pakctl/internal/updates"
)

// MonitorCmd implements the 'monitor' command: a long-running mode serving
// metrics and the status page while periodically rechecking for updates.
type MonitorCmd struct {
	Addr string `help:"Listen address override for the monitor endpoint"`
}

// Run executes the monitor command.
func (cmd *MonitorCmd) Run(g *Global) error {
	rt, err := g.BuildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := opContext()
	defer cancel()

	tracked := rt.Config.Packages.Tracked
	for _, name := range tracked {
		if st, err := acquire(ctx, rt, name); err != nil {
			slog.Warn("Failed to load tracked package",
				logfields.Package(name), logfields.Error(st.Err))
		} else {
			defer rt.Store.Release(name)
		}
	}

	addr := rt.Config.Monitor.Addr
	if cmd.Addr != "" {
		addr = cmd.Addr
	}
	server := monitor.New(addr, rt.Store, rt.Registry)
	if err := server.Start(ctx); err != nil {
		return err
	}

	poller, err := updates.NewPoller(rt.Store, tracked)
	if err != nil {
		return err
	}
	if err := poller.Start(rt.Config.UpdateCheckInterval()); err != nil {
		return err
	}

	// Pick up newly tracked packages without a restart.
	cfgWatcher, err := config.NewWatcher(g.Root.Config, func(ctx context.Context, cfg *config.Config) error {
		for _, name := range cfg.Packages.Tracked {
			if _, tracked := rt.Store.State(name); !tracked {
				rt.Store.Acquire(ctx, name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := cfgWatcher.Start(ctx); err != nil {
		return err
	}

	slog.Info("Monitor running", slog.String("addr", addr))
	<-ctx.Done()

	slog.Info("Shutting down monitor")
	if err := cfgWatcher.Stop(); err != nil {
		slog.Warn("Failed to stop config watcher", logfields.Error(err))
	}
	if err := poller.Stop(); err != nil {
		slog.Warn("Failed to stop update poller", logfields.Error(err))
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return server.Stop(stopCtx)
}
