package commands

import (
	"context"
	"fmt"
	"sort"
)

// ListCmd implements the 'list' command.
type ListCmd struct{}

// Run executes the list command.
func (cmd *ListCmd) Run(g *Global) error {
	rt, err := g.BuildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	installed, err := rt.View.Installed(context.Background())
	if err != nil {
		return err
	}
	if len(installed) == 0 {
		fmt.Println("no packages installed")
		return nil
	}

	sort.Slice(installed, func(i, j int) bool { return installed[i].Name < installed[j].Name })
	for _, pkg := range installed {
		fmt.Printf("%-24s %-16s rev %-6s %s\n", pkg.Name, pkg.Version, pkg.Revision, pkg.TrackingChannel)
	}
	return nil
}
