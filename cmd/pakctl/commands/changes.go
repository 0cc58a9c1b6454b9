package commands

import (
	"context"
	"fmt"
)

// ChangesCmd implements the 'changes' command.
type ChangesCmd struct {
	Package string `arg:"" help:"Package name"`
	Events  string `help:"Show journaled events for this change id instead"`
}

// Run executes the changes command.
func (cmd *ChangesCmd) Run(g *Global) error {
	rt, err := g.BuildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()

	if cmd.Events != "" {
		events, err := rt.Journal.ByChange(ctx, cmd.Events)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Printf("no journaled events for change %s\n", cmd.Events)
			return nil
		}
		for _, ev := range events {
			status := "running"
			if ev.Error != "" {
				status = "failed: " + ev.Error
			} else if ev.Ready {
				status = "done"
			}
			fmt.Printf("%s  %s\n", ev.Timestamp.Format("15:04:05"), status)
		}
		return nil
	}

	changes, err := rt.Client.Changes(ctx, cmd.Package)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Printf("no changes for %s\n", cmd.Package)
		return nil
	}
	for _, c := range changes {
		status := "in flight"
		if c.Ready {
			status = "done"
		}
		fmt.Printf("%-8s %-12s %s\n", c.ID, c.Kind, status)
	}
	return nil
}
