package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/pakctl/internal/util/sets"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Packages []string `arg:"" help:"Packages whose in-flight changes to observe"`
}

// Run executes the watch command.
func (cmd *WatchCmd) Run(g *Global) error {
	rt, err := g.BuildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := opContext()
	defer cancel()

	ids := sets.New[string]()
	for _, name := range cmd.Packages {
		st, err := acquire(ctx, rt, name)
		if err != nil {
			return err
		}
		defer rt.Store.Release(name)
		if st.Record.ActiveChangeID != "" {
			ids.Add(st.Record.ActiveChangeID)
		}
	}
	if len(ids) == 0 {
		fmt.Println("no changes in flight")
		return nil
	}

	fractions, err := rt.Progress.Observe(ctx, ids)
	if err != nil {
		return err
	}
	for fraction := range fractions {
		fmt.Printf("\rprogress: %5.1f%%", fraction*100)
	}
	fmt.Println()

	if err := ctx.Err(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
