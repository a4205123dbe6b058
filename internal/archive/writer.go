package archive

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/engine"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

type job struct {
	round  *RoundRecord
	series *SeriesRecord
}

// Writer hands finished rounds and series to a Store off the lobby goroutines.
// When the buffer is full new records are dropped, never queued behind play.
type Writer struct {
	store   Store
	log     *zap.Logger
	jobs    chan job
	dropped atomic.Int64
}

func NewWriter(store Store, buffer int, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Writer{store: store, log: log.Named("archive"), jobs: make(chan job, buffer)}
}

func (w *Writer) RecordRound(code string, res engine.RoundResult) {
	rec := roundRecordOf(code, res)
	w.enqueue(job{round: &rec}, code)
}

func (w *Writer) RecordSeries(code string, res engine.FinalResults) {
	rec := seriesRecordOf(code, res)
	w.enqueue(job{series: &rec}, code)
}

func (w *Writer) enqueue(j job, code string) {
	select {
	case w.jobs <- j:
	default:
		w.dropped.Add(1)
		w.log.Warn("archive buffer full, dropping record", zap.String("room", code))
	}
}

func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Run writes records until ctx is cancelled, then flushes whatever is still
// buffered. It returns the flush failures.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case j := <-w.jobs:
			if err := w.write(ctx, j); err != nil {
				w.log.Error("archive write failed", zap.Error(err))
			}
		case <-ctx.Done():
			return w.flush(context.WithoutCancel(ctx))
		}
	}
}

func (w *Writer) flush(ctx context.Context) error {
	var errs error
	for {
		select {
		case j := <-w.jobs:
			errs = multierr.Append(errs, w.write(ctx, j))
		default:
			return errs
		}
	}
}

func (w *Writer) write(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	switch {
	case j.round != nil:
		return w.store.SaveRound(ctx, j.round)
	case j.series != nil:
		return w.store.SaveSeries(ctx, j.series)
	}
	return nil
}
