package pipeline

import (
	"context"

	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/model"
	"github.com/serfrae/solder/internal/store"
	"github.com/serfrae/solder/internal/workerpool"
)

// writerPool wraps a workerpool.Pool[model.Batch, struct{}] around
// store.Store.WriteBatch; it has no downstream channel, so Out is the
// empty struct and nothing is ever sent on it.
type writerPool struct {
	pool *workerpool.Pool[model.Batch, struct{}]
}

type writerHandler struct {
	store *store.Store
	log   logging.Logger
}

func newWriterPool(size int, s *store.Store, onFatal func(error)) *writerPool {
	h := &writerHandler{store: s, log: logging.Root().With("component", "writer")}
	return &writerPool{pool: workerpool.New[model.Batch, struct{}]("writer", size, h, onFatal)}
}

func (h *writerHandler) Handle(ctx context.Context, batch model.Batch) (struct{}, bool, error) {
	if err := h.store.WriteBatch(ctx, batch); err != nil {
		h.log.Error("batch write failed", "blockhash", batch.Blockhash, "err", err)
	}
	return struct{}{}, false, nil
}

func (w *writerPool) run(ctx context.Context, batchCh <-chan model.Batch) {
	w.pool.Run(ctx, batchCh, nil)
}
