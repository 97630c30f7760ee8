// Package metrics exposes the monotonic counters and gauges the
// pipeline maintains via prometheus/client_golang. These counters and
// the process-wide logger are the only mutable state shared across
// stages; everything else is confined to a single pipeline stage.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SlotsDropped counts slot notifications the Subscriber discarded
	// because slotCh was full.
	SlotsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solder_slots_dropped_total",
		Help: "Slot notifications dropped by the subscriber due to a full slot channel.",
	})

	// FetchErrors counts fetches abandoned after exhausting retries or
	// timing out.
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solder_fetch_errors_total",
		Help: "Block fetches that failed after retry/timeout.",
	}, []string{"reason"})

	// BlocksDropped counts blocks the processor dropped (missing
	// block_time, or zero tuples produced).
	BlocksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solder_blocks_dropped_total",
		Help: "Blocks dropped by the processor before reaching the writer.",
	}, []string{"reason"})

	// BatchesWritten counts batches successfully committed.
	BatchesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solder_batches_written_total",
		Help: "Batches successfully committed to the store.",
	})

	// RowsWritten counts individual account tuples committed (including
	// no-op conflicts, which are still a successful write per the
	// idempotence contract).
	RowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solder_rows_written_total",
		Help: "Account tuples committed to the store.",
	})

	// BatchesDropped counts batches abandoned after a pool-exhaustion
	// retry, an insert failure, or a commit failure.
	BatchesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solder_batches_dropped_total",
		Help: "Batches dropped by the writer.",
	}, []string{"reason"})

	// TokenBalanceDecodes counts the best-effort SPL token-balance
	// decode path; never persisted, observed only here and in logs.
	TokenBalanceDecodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solder_token_balance_decode_total",
		Help: "Transactions whose pre/post SPL token balances were decoded.",
	})

	// WorkerState reports each stage's current count of workers in a
	// given lifecycle state.
	WorkerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solder_worker_state",
		Help: "Count of workers per stage currently in a given lifecycle state.",
	}, []string{"stage", "state"})
)
