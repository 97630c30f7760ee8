// Package pipeline wires the Subscriber, FetcherPool, ProcessorPool,
// and WriterPool into a bounded-channel dataflow under one root context
// whose cancellation is fanned out to every stage.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serfrae/solder/internal/config"
	"github.com/serfrae/solder/internal/fetcher"
	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/model"
	"github.com/serfrae/solder/internal/process"
	"github.com/serfrae/solder/internal/rpcclient"
	"github.com/serfrae/solder/internal/store"
	"github.com/serfrae/solder/internal/subscriber"
	"github.com/serfrae/solder/internal/workerpool"
)

// shutdownGrace is how long Run waits for every stage to drain after
// root cancellation before giving up.
const shutdownGrace = 30 * time.Second

// ErrFatalStage is returned by Run when shutdown was triggered by a
// stage reporting a fatal error rather than by the caller cancelling
// ctx.
var ErrFatalStage = errors.New("pipeline stage reported a fatal error")

// ErrShutdownTimeout is returned by Run when the stages did not drain
// within shutdownGrace of root cancellation.
var ErrShutdownTimeout = errors.New("pipeline did not drain within the shutdown grace period")

// Pipeline owns every stage and the channels between them.
type Pipeline struct {
	cfg   *config.Config
	store *store.Store
	log   logging.Logger

	slotCh  chan model.SlotNotification
	blockCh chan model.Block
	batchCh chan model.Batch

	sub        *subscriber.Subscriber
	fetchers   *workerpool.Pool[model.SlotNotification, model.Block]
	processors *workerpool.Pool[model.Block, model.Batch]
	writers    *writerPool

	mu         sync.Mutex
	cancelRoot context.CancelFunc
	fatal      atomic.Bool
}

// New constructs a Pipeline. s must already have its schema ensured
// (store.Open does this).
func New(cfg *config.Config, s *store.Store) *Pipeline {
	slotChCap := cfg.Fetcher.WorkerThreads * 4
	if slotChCap <= 0 {
		slotChCap = 16
	}

	p := &Pipeline{
		cfg:     cfg,
		store:   s,
		log:     logging.Root().With("component", "pipeline"),
		slotCh:  make(chan model.SlotNotification, slotChCap),
		blockCh: make(chan model.Block, cfg.Fetcher.WorkerThreads*2),
		batchCh: make(chan model.Batch, cfg.Processor.WorkerThreads*2),
	}

	p.sub = subscriber.New(cfg.Client.WSURL(), nil)

	transport := rpcclient.NewHTTPTransport(cfg.Client.HTTPURL())
	rpc := rpcclient.NewClient(
		transport,
		cfg.Fetcher.MaxRetries,
		cfg.Fetcher.RetryDelay(),
		cfg.Fetcher.Timeout(),
		float64(cfg.Fetcher.WorkerThreads)*2,
	)

	p.fetchers = fetcher.NewPool(cfg.Fetcher.WorkerThreads, rpc, cfg.Fetcher.SlotOffset, p.onFatal)
	p.processors = process.NewPool(cfg.Processor.WorkerThreads, p.onFatal)
	p.writers = newWriterPool(cfg.Storage.WorkerThreads, s, p.onFatal)

	return p
}

// onFatal is passed to every workerpool.Pool as its onFatal callback;
// it marks the pipeline as fatally stopped and cancels the root context
// Run derived, broadcasting shutdown to every stage.
func (p *Pipeline) onFatal(err error) {
	p.log.Error("fatal error, cancelling pipeline", "err", err)
	p.fatal.Store(true)
	p.mu.Lock()
	cancel := p.cancelRoot
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run blocks until ctx is cancelled (by the caller or by a fatal stage
// error), then waits up to shutdownGrace for every stage to drain. It
// returns nil only when shutdown was triggered by ctx itself and every
// stage drained within the grace period; a fatal stage error or a grace
// timeout is reported back via ErrFatalStage / ErrShutdownTimeout so
// the caller can exit non-zero.
func (p *Pipeline) Run(ctx context.Context) error {
	rootCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancelRoot = cancel
	p.mu.Unlock()
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.sub.Start(rootCtx, p.slotCh); err != nil {
			p.onFatal(err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.fetchers.Run(rootCtx, p.slotCh, p.blockCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.processors.Run(rootCtx, p.blockCh, p.batchCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writers.run(rootCtx, p.batchCh)
	}()

	<-rootCtx.Done()
	p.log.Info("root context cancelled, draining pipeline")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("pipeline drained cleanly")
	case <-time.After(shutdownGrace):
		p.log.Error("shutdown grace period exceeded, exiting anyway")
		return ErrShutdownTimeout
	}

	if p.fatal.Load() {
		return ErrFatalStage
	}
	return nil
}
