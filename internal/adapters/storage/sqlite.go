package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

// SQLiteAdapter implements ports.HistoryStore using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// FixModel is the GORM model for one acquisition attempt.
type FixModel struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"index"`
	Outcome    string `gorm:"index"`
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	Source     string
	Error      string
	AcquiredAt time.Time `gorm:"index"`
}

// ViewSnapshotModel stores the last view of a session so a reconnecting
// client resumes where it left off.
type ViewSnapshotModel struct {
	SessionID string `gorm:"primaryKey"`
	CenterX   float64
	CenterY   float64
	Zoom      float64
	UpdatedAt time.Time
}

// NewSQLiteAdapter initializes the database and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return newAdapter(db)
}

func newAdapter(db *gorm.DB) (*SQLiteAdapter, error) {
	if err := db.AutoMigrate(&FixModel{}, &ViewSnapshotModel{}); err != nil {
		return nil, err
	}
	return &SQLiteAdapter{db: db}, nil
}

// SaveFixes writes a batch of fix records in a single transaction.
func (a *SQLiteAdapter) SaveFixes(ctx context.Context, records []domain.FixRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]FixModel, len(records))
	for i, r := range records {
		models[i] = toFixModel(r)
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(models, 100).Error
	})
}

// ListFixes returns the newest fixes of a session first. An empty sessionID
// lists every session.
func (a *SQLiteAdapter) ListFixes(ctx context.Context, sessionID string, limit int) ([]domain.FixRecord, error) {
	query := a.db.WithContext(ctx).Order("acquired_at DESC, id DESC")
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []FixModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]domain.FixRecord, len(models))
	for i, m := range models {
		records[i] = toFixRecord(m)
	}
	return records, nil
}

// SaveView upserts the view snapshot of a session.
func (a *SQLiteAdapter) SaveView(ctx context.Context, sessionID string, view domain.ViewState) error {
	model := ViewSnapshotModel{
		SessionID: sessionID,
		CenterX:   view.Center.X,
		CenterY:   view.Center.Y,
		Zoom:      view.ZoomLevel,
		UpdatedAt: time.Now(),
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&model).Error
}

// LoadView returns the stored view of a session, or nil if there is none.
func (a *SQLiteAdapter) LoadView(ctx context.Context, sessionID string) (*domain.ViewState, error) {
	var model ViewSnapshotModel
	err := a.db.WithContext(ctx).First(&model, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.ViewState{
		Center:    domain.ProjectedPoint{X: model.CenterX, Y: model.CenterY},
		ZoomLevel: model.Zoom,
	}, nil
}

// Close closes the underlying connection pool.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
