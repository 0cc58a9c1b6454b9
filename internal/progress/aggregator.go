// Package progress aggregates task counters from multiple changes into a
// single running fraction.
package progress

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/pakctl/internal/metrics"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
	"git.home.luguber.info/inful/pakctl/internal/util/sets"
)

// Aggregator combines per-change progress into one stream of mean fractions.
// It subscribes independently of any package's own watcher, so observing
// progress never steals the watcher's terminal event.
type Aggregator struct {
	streams  pakd.ChangeStreamer
	recorder metrics.Recorder
}

// New creates an aggregator on the given stream transport.
func New(streams pakd.ChangeStreamer) *Aggregator {
	return &Aggregator{
		streams:  streams,
		recorder: metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder (optional).
func (a *Aggregator) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	a.recorder = r
}

type sample struct {
	id       string
	fraction float64
}

// Observe subscribes to every change in ids and returns a channel emitting
// the arithmetic mean of the per-change fractions on every contributing
// update. Each change's fraction starts at 0 and is sum(done)/sum(total)
// across its tasks, 0 when the totals sum to zero.
//
// The sequence is lazy and non-restartable. Canceling ctx disposes the
// observer: all per-change subscriptions are torn down and the channel
// closes. The channel also closes once every watched change has gone
// terminal.
func (a *Aggregator) Observe(ctx context.Context, ids sets.Set[string]) (<-chan float64, error) {
	cctx, cancel := context.WithCancel(ctx)

	samples := make(chan sample)
	var wg sync.WaitGroup

	fractions := make(map[string]float64, len(ids))
	for id := range ids {
		updates, err := a.streams.Stream(cctx, id)
		if err != nil {
			cancel()
			return nil, err
		}
		fractions[id] = 0

		wg.Add(1)
		go func(id string, updates <-chan pakd.ChangeUpdate) {
			defer wg.Done()
			for {
				select {
				case <-cctx.Done():
					return
				case update, ok := <-updates:
					if !ok {
						return
					}
					select {
					case samples <- sample{id: id, fraction: update.Fraction()}:
					case <-cctx.Done():
						return
					}
				}
			}
		}(id, updates)
	}

	go func() {
		wg.Wait()
		close(samples)
		cancel()
	}()

	out := make(chan float64)
	go func() {
		defer close(out)
		for s := range samples {
			fractions[s.id] = s.fraction

			var sum float64
			for _, f := range fractions {
				sum += f
			}
			mean := sum / float64(len(fractions))
			a.recorder.SetAggregateProgress(mean)

			select {
			case out <- mean:
			case <-cctx.Done():
				return
			}
		}
	}()

	return out, nil
}
