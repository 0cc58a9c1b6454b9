package commands

import (
	"context"
	"fmt"
	"sort"
)

// InfoCmd implements the 'info' command.
type InfoCmd struct {
	Package string `arg:"" help:"Package name"`
}

// Run executes the info command.
func (cmd *InfoCmd) Run(g *Global) error {
	rt, err := g.BuildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	st, err := acquire(ctx, rt, cmd.Package)
	if err != nil {
		return err
	}
	defer rt.Store.Release(cmd.Package)

	rec := st.Record
	fmt.Printf("name:      %s\n", rec.Name)

	if rec.Installed() {
		local := rec.Local.Unwrap()
		fmt.Printf("installed: %s (rev %s)\n", local.Version, local.Revision)
		if local.TrackingChannel != "" {
			fmt.Printf("tracking:  %s\n", local.TrackingChannel)
		}
	} else {
		fmt.Println("installed: no")
	}

	if rec.HasCatalog() {
		catalog := rec.Catalog.Unwrap()
		if catalog.Publisher != "" {
			fmt.Printf("publisher: %s\n", catalog.Publisher)
		}
		if catalog.Summary != "" {
			fmt.Printf("summary:   %s\n", catalog.Summary)
		}
		fmt.Printf("channel:   %s\n", rec.SelectedChannel)

		names := make([]string, 0, len(catalog.Channels))
		for name := range catalog.Channels {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("channels:")
		for _, name := range names {
			ch := catalog.Channels[name]
			marker := " "
			if name == rec.SelectedChannel {
				marker = "*"
			}
			fmt.Printf("  %s %-16s %s (rev %s, %s)\n", marker, name, ch.Version, ch.Revision, ch.Confinement)
		}
	} else {
		fmt.Println("catalog:   unavailable")
	}

	if rec.HasUpdate {
		fmt.Println("update:    available")
	}
	if rec.ActiveChangeID != "" {
		fmt.Printf("change:    %s in flight\n", rec.ActiveChangeID)
	}
	return nil
}
