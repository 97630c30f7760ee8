// Package fetcher wires internal/rpcclient into a workerpool.Pool,
// resolving each SlotNotification to a Block.
//
// Grounded on original_source/src/client/rpc_worker.rs, which paired a
// Worker with a bounded channel and a fixed slot-2 offset; here that
// becomes a workerpool.Handler instance run by a generic Pool.
package fetcher

import (
	"context"
	"errors"

	"github.com/serfrae/solder/internal/apperror"
	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/metrics"
	"github.com/serfrae/solder/internal/model"
	"github.com/serfrae/solder/internal/workerpool"
)

// BlockGetter is the subset of rpcclient.Client the fetcher depends
// on, kept narrow so tests can supply a fake.
type BlockGetter interface {
	GetBlock(ctx context.Context, slot uint64) (*model.Block, error)
}

// handler implements workerpool.Handler[model.SlotNotification, model.Block].
type handler struct {
	client     BlockGetter
	slotOffset uint64
	log        logging.Logger
}

// NewPool constructs the FetcherPool: size workers, each resolving a
// SlotNotification to a Block via client, fetching slot-slotOffset
// rather than the notified slot, since the most recent slot is
// frequently unconfirmed.
func NewPool(size int, client BlockGetter, slotOffset uint64, onFatal func(error)) *workerpool.Pool[model.SlotNotification, model.Block] {
	h := &handler{
		client:     client,
		slotOffset: slotOffset,
		log:        logging.Root().With("component", "fetcher"),
	}
	return workerpool.New[model.SlotNotification, model.Block]("fetcher", size, h, onFatal)
}

func (h *handler) Handle(ctx context.Context, notif model.SlotNotification) (model.Block, bool, error) {
	target := notif.Slot
	if target >= h.slotOffset {
		target -= h.slotOffset
	} else {
		target = 0
	}

	block, err := h.client.GetBlock(ctx, target)
	if err != nil {
		h.log.Warn("fetch failed, dropping slot", "slot", notif.Slot, "target_slot", target, "err", err)
		metrics.FetchErrors.WithLabelValues(reasonFor(err)).Inc()
		// Fetch failures are per-slot, never fatal to the pool: the
		// next notification is independent.
		return model.Block{}, false, nil
	}
	if block == nil {
		metrics.FetchErrors.WithLabelValues("empty").Inc()
		return model.Block{}, false, nil
	}
	block.Slot = target
	return *block, true, nil
}

func reasonFor(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, apperror.Timeout):
		return "timeout"
	case errors.Is(err, apperror.Transient):
		return "transient"
	default:
		return "other"
	}
}
