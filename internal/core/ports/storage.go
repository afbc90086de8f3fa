package ports

import (
	"context"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

// HistoryStore persists acquisition attempts and view snapshots.
type HistoryStore interface {
	SaveFixes(ctx context.Context, records []domain.FixRecord) error
	ListFixes(ctx context.Context, sessionID string, limit int) ([]domain.FixRecord, error)
	SaveView(ctx context.Context, sessionID string, view domain.ViewState) error
	LoadView(ctx context.Context, sessionID string) (*domain.ViewState, error)
	Close() error
}

// FixRecorder queues fix records for background persistence.
type FixRecorder interface {
	Record(record domain.FixRecord)
}
