// Package workerpool implements the single supervised worker-pool shape
// used by every stage of the ingestion pipeline.
//
// The Rust original modeled each stage as a trait object over boxed,
// pinned futures (Gettable/Processable/Storable + a Worker/WorkerManager
// pair per concrete queue type). This package replaces that with one
// generic type: Pool[In, Out] parametric over a Handler. There is
// exactly one pool shape, channel-based, no lock-free queue.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/serfrae/solder/internal/apperror"
	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/metrics"
)

// State is a worker's position in its lifecycle. Transitions are
// monotonic: Starting -> Running -> Draining -> {Stopped, Failed}.
type State int32

const (
	Starting State = iota
	Running
	Draining
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handler processes one item of type In, producing zero or one Out.
// A Handler returning ok=false emits nothing downstream (e.g. a
// processor that dropped an empty batch); a non-nil error that wraps
// apperror.Fatal triggers pipeline-wide shutdown, anything else is
// logged by the pool and the worker continues to its next item.
type Handler[In, Out any] interface {
	Handle(ctx context.Context, item In) (out Out, ok bool, err error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc[In, Out any] func(ctx context.Context, item In) (Out, bool, error)

func (f HandlerFunc[In, Out]) Handle(ctx context.Context, item In) (Out, bool, error) {
	return f(ctx, item)
}

// Pool is a fixed-size set of workers all running the same Handler,
// reading from In and writing to Out. It is the single supervision
// primitive every stage (Subscriber excepted, which is single-task)
// builds on.
type Pool[In, Out any] struct {
	name    string
	size    int
	handler Handler[In, Out]
	log     logging.Logger

	mu      sync.Mutex
	states  map[string]State
	wg      sync.WaitGroup
	started bool

	onFatal func(error)
}

// New constructs a Pool of the given size. onFatal, if non-nil, is
// invoked (once per occurrence) whenever a worker's Handler returns an
// error wrapping apperror.Fatal; the caller typically cancels the root
// context from there.
func New[In, Out any](name string, size int, handler Handler[In, Out], onFatal func(error)) *Pool[In, Out] {
	if size <= 0 {
		size = 1
	}
	return &Pool[In, Out]{
		name:    name,
		size:    size,
		handler: handler,
		log:     logging.Root().With("pool", name),
		states:  make(map[string]State, size),
		onFatal: onFatal,
	}
}

// Run starts size workers consuming in and producing to out, and
// blocks until ctx is cancelled or in is closed and drained. Run is
// safe to call exactly once; cancel ctx to stop it.
func (p *Pool[In, Out]) Run(ctx context.Context, in <-chan In, out chan<- Out) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.log.Info("starting worker pool", "size", p.size)
	for i := 0; i < p.size; i++ {
		id := uuid.NewString()
		p.setState(id, Starting)
		p.wg.Add(1)
		go p.worker(ctx, id, in, out)
	}
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool[In, Out]) worker(ctx context.Context, id string, in <-chan In, out chan<- Out) {
	defer p.wg.Done()
	log := p.log.With("worker", id)
	p.setState(id, Running)

	for {
		select {
		case <-ctx.Done():
			p.setState(id, Draining)
			p.setState(id, Stopped)
			return
		case item, more := <-in:
			if !more {
				p.setState(id, Stopped)
				return
			}
			result, ok, err := p.handler.Handle(ctx, item)
			if err != nil {
				log.Warn("worker handler error", "err", err)
				if isFatal(err) {
					p.setState(id, Failed)
					if p.onFatal != nil {
						p.onFatal(err)
					}
					return
				}
				continue
			}
			if !ok {
				continue
			}
			if out == nil {
				continue
			}
			select {
			case out <- result:
			case <-ctx.Done():
				p.setState(id, Draining)
				p.setState(id, Stopped)
				return
			}
		}
	}
}

func (p *Pool[In, Out]) setState(id string, s State) {
	p.mu.Lock()
	if old, ok := p.states[id]; ok {
		metrics.WorkerState.WithLabelValues(p.name, old.String()).Dec()
	}
	p.states[id] = s
	metrics.WorkerState.WithLabelValues(p.name, s.String()).Inc()
	p.mu.Unlock()
}

// States returns a snapshot of every worker's current lifecycle state,
// keyed by worker id.
func (p *Pool[In, Out]) States() map[string]State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]State, len(p.states))
	for k, v := range p.states {
		out[k] = v
	}
	return out
}

func isFatal(err error) bool {
	return errors.Is(err, apperror.Fatal)
}
