package capture

import (
	"strings"
	"time"
)

// ExportSchemaVersion identifies the JSONL export layout.
const ExportSchemaVersion = "1.0"

// ExportRecord represents one line of a JSONL history export.
// The first line of a file is a header with ClipnestExport set.
type ExportRecord struct {
	// Header detection field - true only for header line
	ClipnestExport bool `json:"_clipnest_export,omitempty"`

	// Header fields (only present in header line)
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	// Entry fields
	ID          string     `json:"id,omitempty"`
	Text        string     `json:"text,omitempty"`
	Pinned      bool       `json:"pinned,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	SourceApp   *string    `json:"source_app,omitempty"`
	WindowTitle *string    `json:"window_title,omitempty"`
	SourceURL   *string    `json:"source_url,omitempty"`
	CaptureType Type       `json:"capture_type,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	ContentHash string     `json:"content_hash,omitempty"` // IGNORED on import, recomputed
}

// ToEntry converts an ExportRecord to an Entry, recomputing derived fields.
func (r *ExportRecord) ToEntry() Entry {
	e := Entry{
		ID:          r.ID,
		Text:        r.Text,
		Pinned:      r.Pinned,
		SourceApp:   r.SourceApp,
		WindowTitle: r.WindowTitle,
		SourceURL:   r.SourceURL,
		CaptureType: r.CaptureType,
		Tags:        r.Tags,
		ContentHash: Hash(r.Text), // Recompute
	}
	if r.Timestamp != nil {
		e.Timestamp = *r.Timestamp
	}
	if e.CaptureType == "" {
		e.CaptureType = Classify(strings.TrimSpace(r.Text))
	}
	e.FillDerived()
	return e
}

// EntryToExportRecord converts an Entry to an ExportRecord for export.
func EntryToExportRecord(e *Entry) *ExportRecord {
	ts := e.Timestamp
	return &ExportRecord{
		ID:          e.ID,
		Text:        e.Text,
		Pinned:      e.Pinned,
		Timestamp:   &ts,
		SourceApp:   e.SourceApp,
		WindowTitle: e.WindowTitle,
		SourceURL:   e.SourceURL,
		CaptureType: e.CaptureType,
		Tags:        e.Tags,
		ContentHash: e.ContentHash,
	}
}
