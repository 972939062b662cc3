package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/errors"
)

// SaveHistory replaces the stored history with entries, keeping their order.
// The rewrite happens in one transaction so readers never see a partial list.
func SaveHistory(ctx context.Context, db *sql.DB, entries []capture.Entry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries`); err != nil {
		return errors.NewInternal(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history_entries (
			id, position, text, pinned, captured_at,
			source_app, window_title, source_url,
			capture_type, tags_json, content_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for i, e := range entries {
		// Convert tags to JSON
		var tagsJSON sql.NullString
		if len(e.Tags) > 0 {
			data, err := json.Marshal(e.Tags)
			if err != nil {
				return errors.NewInternal(err)
			}
			tagsJSON = sql.NullString{String: string(data), Valid: true}
		}

		var hash sql.NullString
		if e.ContentHash != "" {
			hash = sql.NullString{String: e.ContentHash, Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			e.ID, i, e.Text, e.Pinned, e.Timestamp.UnixNano(),
			toNullString(e.SourceApp), toNullString(e.WindowTitle), toNullString(e.SourceURL),
			string(e.CaptureType), tagsJSON, hash,
		)
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadHistory returns the stored history in saved order.
func LoadHistory(ctx context.Context, db *sql.DB) ([]capture.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, text, pinned, captured_at,
			source_app, window_title, source_url,
			capture_type, tags_json, content_hash
		FROM history_entries
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	entries := make([]capture.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entries, nil
}

// CountHistory returns the number of stored entries.
func CountHistory(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history_entries`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// scanEntry scans a single row into an Entry.
func scanEntry(rows *sql.Rows) (*capture.Entry, error) {
	var (
		e           capture.Entry
		capturedAt  int64
		sourceApp   sql.NullString
		windowTitle sql.NullString
		sourceURL   sql.NullString
		captureType string
		tagsJSON    sql.NullString
		hash        sql.NullString
	)

	err := rows.Scan(
		&e.ID, &e.Text, &e.Pinned, &capturedAt,
		&sourceApp, &windowTitle, &sourceURL,
		&captureType, &tagsJSON, &hash,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = time.Unix(0, capturedAt).UTC()
	e.SourceApp = fromNullString(sourceApp)
	e.WindowTitle = fromNullString(windowTitle)
	e.SourceURL = fromNullString(sourceURL)
	e.CaptureType = capture.Type(captureType)
	if hash.Valid {
		e.ContentHash = hash.String
	}

	// Parse tags JSON
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &e.Tags); err != nil {
			return nil, err
		}
	}
	e.FillDerived()

	return &e, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
