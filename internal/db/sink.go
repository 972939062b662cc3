package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/clipnest/internal/capture"
)

// Sink adapts a database handle to the history persistence interface.
type Sink struct {
	db *sql.DB
}

// NewSink wraps database.
func NewSink(database *sql.DB) *Sink {
	return &Sink{db: database}
}

// Save implements pipeline.Persister.
func (s *Sink) Save(ctx context.Context, entries []capture.Entry) error {
	return SaveHistory(ctx, s.db, entries)
}

// Load returns the persisted history.
func (s *Sink) Load(ctx context.Context) ([]capture.Entry, error) {
	return LoadHistory(ctx, s.db)
}

// Close closes the underlying database.
func (s *Sink) Close() error {
	return s.db.Close()
}
