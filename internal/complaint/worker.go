package complaint

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrPoolClosed is returned when submitting to a pool that has been closed.
var ErrPoolClosed = errors.New("worker pool is closed")

// Handler processes one event. Implementations must be safe for concurrent
// use by all workers.
type Handler interface {
	Process(ctx context.Context, ev Event) ProcessResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) ProcessResult

func (f HandlerFunc) Process(ctx context.Context, ev Event) ProcessResult { return f(ctx, ev) }

type job struct {
	event Event
	reply chan ProcessResult // nil: result goes to the results channel
}

// Worker represents a single worker in the event processing pool.
//
// Lifecycle:
//  1. Start: Begin listening on jobs channel
//  2. Process: Hand the event to the handler
//  3. Result: Deliver the result to the caller or the results channel
//  4. Stop: Exit when jobs channel is closed
type Worker struct {
	id      int
	jobs    <-chan job
	results chan<- ProcessResult
	ctx     context.Context
	handler Handler
	wg      *sync.WaitGroup
}

// WorkerPool manages a pool of concurrent event processing workers.
//
// Benefits of worker pool:
//   - Controlled concurrency (bounded gateway and ledger load)
//   - Backpressure handling (buffered job channel)
//   - Graceful shutdown (wait for all workers to finish)
type WorkerPool struct {
	workers []*Worker
	jobs    chan job
	results chan ProcessResult
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates and starts a pool of workerCount workers.
//
// Parameters:
//   - ctx: Context passed to every handler call
//   - handler: Processes each event
//   - workerCount: Number of concurrent workers
//
// Results of Submit calls must be drained from Results().
func NewWorkerPool(ctx context.Context, handler Handler, workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	log.Printf("  → Creating worker pool with %d workers...", workerCount)

	pool := &WorkerPool{
		workers: make([]*Worker, workerCount),
		jobs:    make(chan job, 100),
		results: make(chan ProcessResult, 100),
	}

	for i := 0; i < workerCount; i++ {
		worker := &Worker{
			id:      i + 1,
			jobs:    pool.jobs,
			results: pool.results,
			ctx:     ctx,
			handler: handler,
			wg:      &pool.wg,
		}
		pool.workers[i] = worker
		pool.wg.Add(1)
		go worker.start()
	}

	log.Printf("  ✓ Worker pool started with %d workers", workerCount)
	return pool
}

func (p *WorkerPool) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues an event; its result arrives on Results().
//
// Blocks while the job buffer is full, until ctx is done.
func (p *WorkerPool) Submit(ctx context.Context, ev Event) error {
	return p.enqueue(ctx, job{event: ev})
}

// Do queues an event and waits for its result.
func (p *WorkerPool) Do(ctx context.Context, ev Event) (ProcessResult, error) {
	reply := make(chan ProcessResult, 1)
	if err := p.enqueue(ctx, job{event: ev, reply: reply}); err != nil {
		return ProcessResult{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return ProcessResult{}, ctx.Err()
	}
}

// Close stops accepting jobs and waits for all workers to finish.
//
// Shutdown flow:
//  1. Close jobs channel (workers exit after draining it)
//  2. Wait for all workers
//  3. Close results channel
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.results)
}

// Results returns the channel carrying results of Submit calls.
func (p *WorkerPool) Results() <-chan ProcessResult {
	return p.results
}

func (w *Worker) start() {
	defer w.wg.Done()

	for j := range w.jobs {
		log.Printf("  [Worker #%d] Processing %s event for complaint %s", w.id, j.event.Kind, j.event.ComplaintID)

		result := w.handler.Process(w.ctx, j.event)

		if result.Error != nil {
			log.Printf("  [Worker #%d] ✗ Failed to process %s: %v", w.id, j.event.ComplaintID, result.Error)
		} else {
			log.Printf("  [Worker #%d] ✓ Processed %s", w.id, j.event.ComplaintID)
		}

		if j.reply != nil {
			j.reply <- result
		} else {
			w.results <- result
		}
	}
}
