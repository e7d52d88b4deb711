// Package dispatcher manages worker fan-out over the post stream.
package dispatcher

import (
	"context"
	"sync"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/worker"
)

// Dispatcher fans posts out to a pool of workers.
type Dispatcher struct {
	workers []*worker.Worker
	buffer  int
}

// New creates a Dispatcher. The buffer bounds how far the feeder can run
// ahead of the workers.
func New(workers []*worker.Worker, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = len(workers)
	}
	return &Dispatcher{
		workers: workers,
		buffer:  buffer,
	}
}

// Run feeds every post to the pool and blocks until all workers drain. It
// returns early when the context finishes.
func (d *Dispatcher) Run(ctx context.Context, posts []cafemap.Post) {
	ch := make(chan cafemap.Post, d.buffer)

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx, ch)
		}(w)
	}

feed:
	for _, post := range posts {
		select {
		case <-ctx.Done():
			break feed
		case ch <- post:
		}
	}
	close(ch)
	wg.Wait()
}
