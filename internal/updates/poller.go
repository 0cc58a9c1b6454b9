package updates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/pakctl/internal/logfields"
)

// Rebuilder is the slice of the package store the poller needs.
type Rebuilder interface {
	Rebuild(ctx context.Context, name string) error
}

// Poller periodically rebuilds tracked package records so the update flag
// follows the catalog without user interaction.
type Poller struct {
	scheduler gocron.Scheduler
	store     Rebuilder
	packages  []string
}

// NewPoller creates a poller for the given tracked packages.
func NewPoller(store Rebuilder, packages []string) (*Poller, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Poller{
		scheduler: s,
		store:     store,
		packages:  packages,
	}, nil
}

// Start schedules the recheck job and begins the scheduler.
func (p *Poller) Start(interval time.Duration) error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.recheck),
		gocron.WithName("update-recheck"),
	)
	if err != nil {
		return fmt.Errorf("failed to create update recheck job: %w", err)
	}

	slog.Info("Starting update poller",
		slog.Duration("interval", interval),
		slog.Int("packages", len(p.packages)))
	p.scheduler.Start()
	return nil
}

// Stop gracefully shuts down the scheduler.
func (p *Poller) Stop() error {
	slog.Info("Stopping update poller")
	return p.scheduler.Shutdown()
}

func (p *Poller) recheck() {
	ctx := context.Background()
	for _, name := range p.packages {
		if err := p.store.Rebuild(ctx, name); err != nil {
			slog.Warn("Update recheck failed",
				logfields.Package(name),
				logfields.Error(err))
		}
	}
}
