// Package projection maintains query-side tables derived from the
// settlement log. The engine does not track per-account share holdings
// (the share token lives outside the pool), so the holdings table here
// is what account queries read.
package projection

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"PoolCore/internal/core"
	"PoolCore/internal/event"
	"PoolCore/internal/observability"
)

// Worker drains the projection channel and applies fill effects to the
// holdings table. The channel is non-blocking with drop on the engine
// side; a dropped update only means the table lags until the next
// rebuild, never that the engine stalls.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.Output
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewWorker(db *sql.DB, inputChan <-chan core.Output, log zerolog.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		log:       log,
		metrics:   metrics,
	}
}

// Run applies records until ctx is cancelled or the channel closes.
// Failures are logged and skipped; the table is eventually consistent
// and rebuildable from the settlement log.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if err := w.apply(ctx, out); err != nil {
				w.log.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("projection update failed")
				continue
			}
			if w.metrics != nil {
				w.metrics.ProjectionLastSeq.Set(float64(out.Envelope.Sequence))
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, out core.Output) error {
	filled, ok := out.Envelope.Payload.(event.OrderFilled)
	if !ok {
		return nil // only fills move share holdings
	}
	return applyFill(ctx, w.db, filled.Account, filled.SharesMinted, out.Envelope.Sequence)
}
