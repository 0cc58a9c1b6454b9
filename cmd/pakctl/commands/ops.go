package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
)

// opContext cancels the watch on SIGINT/SIGTERM; the daemon keeps running
// the change, pakctl just stops waiting for it.
func opContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runOp wires the shared acquire/operate/release lifecycle of the mutating
// commands.
func runOp(g *Global, name string, op func(ctx context.Context, rt *Runtime) error) error {
	rt, err := g.BuildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := opContext()
	defer cancel()

	if _, err := acquire(ctx, rt, name); err != nil {
		return err
	}
	defer rt.Store.Release(name)

	return op(ctx, rt)
}

// InstallCmd implements the 'install' command.
type InstallCmd struct {
	Package string `arg:"" help:"Package name"`
	Channel string `help:"Select this channel before installing"`
}

// Run executes the install command.
func (cmd *InstallCmd) Run(g *Global) error {
	return runOp(g, cmd.Package, func(ctx context.Context, rt *Runtime) error {
		if cmd.Channel != "" {
			if err := rt.Controller.SelectChannel(ctx, cmd.Package, cmd.Channel); err != nil {
				return err
			}
		}
		if err := rt.Controller.Install(ctx, cmd.Package); err != nil {
			return err
		}
		fmt.Printf("%s installed\n", cmd.Package)
		return nil
	})
}

// RefreshCmd implements the 'refresh' command.
type RefreshCmd struct {
	Package string `arg:"" help:"Package name"`
	Channel string `help:"Select this channel before refreshing"`
}

// Run executes the refresh command.
func (cmd *RefreshCmd) Run(g *Global) error {
	return runOp(g, cmd.Package, func(ctx context.Context, rt *Runtime) error {
		if cmd.Channel != "" {
			if err := rt.Controller.SelectChannel(ctx, cmd.Package, cmd.Channel); err != nil {
				return err
			}
		}
		if err := rt.Controller.Refresh(ctx, cmd.Package); err != nil {
			return err
		}
		fmt.Printf("%s refreshed\n", cmd.Package)
		return nil
	})
}

// RemoveCmd implements the 'remove' command.
type RemoveCmd struct {
	Package string `arg:"" help:"Package name"`
}

// Run executes the remove command.
func (cmd *RemoveCmd) Run(g *Global) error {
	return runOp(g, cmd.Package, func(ctx context.Context, rt *Runtime) error {
		if err := rt.Controller.Remove(ctx, cmd.Package); err != nil {
			return err
		}
		fmt.Printf("%s removed\n", cmd.Package)
		return nil
	})
}

// CancelCmd implements the 'cancel' command.
type CancelCmd struct {
	Package string `arg:"" help:"Package name"`
}

// Run executes the cancel command.
func (cmd *CancelCmd) Run(g *Global) error {
	return runOp(g, cmd.Package, func(ctx context.Context, rt *Runtime) error {
		if err := rt.Controller.Cancel(ctx, cmd.Package); err != nil {
			return err
		}
		fmt.Printf("%s: no change in flight anymore\n", cmd.Package)
		return nil
	})
}

// SwitchCmd implements the 'switch' command.
type SwitchCmd struct {
	Package string `arg:"" help:"Package name"`
	Channel string `arg:"" help:"Channel to select"`
}

// Run executes the switch command.
func (cmd *SwitchCmd) Run(g *Global) error {
	return runOp(g, cmd.Package, func(ctx context.Context, rt *Runtime) error {
		if err := rt.Controller.SelectChannel(ctx, cmd.Package, cmd.Channel); err != nil {
			return err
		}
		fmt.Printf("%s now uses channel %s\n", cmd.Package, cmd.Channel)
		return nil
	})
}
