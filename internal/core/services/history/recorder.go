// Package history batches fix records in the background before they reach
// the history store.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
	"github.com/lcalzada-xor/geoview/internal/telemetry"
)

// Recorder handles background batch writing of fix records to storage.
type Recorder struct {
	store     ports.HistoryStore
	queue     chan domain.FixRecord
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	done      chan struct{}
}

// NewRecorder creates a recorder with a queue of bufferSize records.
func NewRecorder(store ports.HistoryStore, bufferSize int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:     store,
		queue:     make(chan domain.FixRecord, bufferSize),
		batchSize: 50,
		interval:  5 * time.Second,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Record queues a fix record. It never blocks; a full queue drops the record
// and counts it in geoview_history_dropped_total.
func (r *Recorder) Record(record domain.FixRecord) {
	select {
	case r.queue <- record:
	default:
		telemetry.HistoryDropped.Inc()
		r.logger.Warn("fix history queue full, dropping record", "session", record.SessionID)
	}
}

// Start begins the flush loop. Cancelling ctx flushes what is buffered.
func (r *Recorder) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	buffer := make([]domain.FixRecord, 0, r.batchSize)

	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				buffer = r.drain(buffer)
				r.flush(buffer)
				return
			case rec := <-r.queue:
				buffer = append(buffer, rec)
				if len(buffer) >= r.batchSize {
					r.flush(buffer)
					buffer = buffer[:0]
				}
			case <-ticker.C:
				if len(buffer) > 0 {
					r.flush(buffer)
					buffer = buffer[:0]
				}
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (r *Recorder) Wait() {
	<-r.done
}

func (r *Recorder) drain(buffer []domain.FixRecord) []domain.FixRecord {
	for {
		select {
		case rec := <-r.queue:
			buffer = append(buffer, rec)
		default:
			return buffer
		}
	}
}

func (r *Recorder) flush(buffer []domain.FixRecord) {
	if len(buffer) == 0 || r.store == nil {
		return
	}
	batch := append([]domain.FixRecord(nil), buffer...)

	// The loop context is already gone on shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.SaveFixes(ctx, batch); err != nil {
		r.logger.Error("failed to batch save fix records", "count", len(batch), "error", err)
	}
}
