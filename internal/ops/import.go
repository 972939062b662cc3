package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/pipeline"
)

// maxImportLine bounds a single JSONL record.
const maxImportLine = 16 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required, .jsonl
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import merges entries from a JSONL export into the history. Hashes are
// recomputed and the merged list goes through the usual dedup and capacity
// pass, existing entries winning ties. Bad lines are reported and skipped.
func Import(ctx context.Context, p *pipeline.Pipeline, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, ExportJSONL.Ext()); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.ClipError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, importErrors := parseExportFile(file)

	entries := make([]capture.Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.ToEntry())
	}

	imported := 0
	if len(entries) > 0 {
		imported = p.Store().Import(entries)
		p.Changed(ctx)
	}

	if importErrors == nil {
		importErrors = []ImportError{}
	}
	return &ImportOutput{
		Imported: imported,
		Skipped:  len(importErrors) + len(entries) - imported,
		Errors:   importErrors,
	}, nil
}

// parseExportFile parses a JSONL export into records, skipping the header.
func parseExportFile(r io.Reader) ([]capture.ExportRecord, []ImportError) {
	var records []capture.ExportRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var record capture.ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		// Skip header line
		if record.ClipnestExport {
			continue
		}

		if record.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}
		if record.Text == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      record.ID,
				Code:    "INVALID_RECORD",
				Message: "missing text field",
			})
			continue
		}

		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}
