package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/yuin/goldmark"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/pipeline"
)

// ExportFormat selects the export file layout.
type ExportFormat string

const (
	ExportJSONL    ExportFormat = "jsonl"
	ExportMarkdown ExportFormat = "markdown"
	ExportHTML     ExportFormat = "html"
)

// Ext returns the file extension for the format.
func (f ExportFormat) Ext() string {
	switch f {
	case ExportMarkdown:
		return ".md"
	case ExportHTML:
		return ".html"
	default:
		return ".jsonl"
	}
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path       string       // optional, default: <base>/exports/history-<timestamp>.<ext>
	Format     ExportFormat // default: jsonl
	PinnedOnly bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string       `json:"path"`
	Format     ExportFormat `json:"format"`
	Count      int          `json:"count"`
	ExportedAt int64        `json:"exported_at"`
}

// Export writes the history to a file. The file is replaced atomically so a
// failed export never leaves a partial file behind.
func Export(ctx context.Context, p *pipeline.Pipeline, baseDir string, input ExportInput) (*ExportOutput, error) {
	format := ExportFormat(strings.ToLower(strings.TrimSpace(string(input.Format))))
	switch format {
	case "":
		format = ExportJSONL
	case ExportJSONL, ExportMarkdown, ExportHTML:
	default:
		return nil, errors.NewInvalidRequest("format must be one of: jsonl, markdown, html")
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		if baseDir == "" {
			return nil, errors.NewInvalidRequest("path is required")
		}
		exportPath = defaultExportPath(baseDir, format, now)
	}
	if err := ValidatePath(exportPath, PathCheckWrite, format.Ext()); err != nil {
		return nil, err
	}

	var entries []capture.Entry
	for _, e := range p.Store().List() {
		if input.PinnedOnly && !e.Pinned {
			continue
		}
		entries = append(entries, e)
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	var data []byte
	var err error
	switch format {
	case ExportJSONL:
		data, err = renderJSONL(entries, now)
	case ExportMarkdown:
		data = renderMarkdown(entries, now)
	case ExportHTML:
		data, err = renderHTML(entries, now)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}
	if err := atomic.WriteFile(exportPath, bytes.NewReader(data)); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to write export: %w", err))
	}

	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Count:      len(entries),
		ExportedAt: now.Unix(),
	}, nil
}

// defaultExportPath returns <base>/exports/history-<timestamp>.<ext>.
func defaultExportPath(baseDir string, format ExportFormat, now time.Time) string {
	name := "history-" + now.Format("2006-01-02T150405") + format.Ext()
	return filepath.Join(DefaultExportsDir(baseDir), name)
}

// renderJSONL writes a header line followed by one record per entry.
func renderJSONL(entries []capture.Entry, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	header := capture.ExportRecord{
		ClipnestExport: true,
		SchemaVersion:  capture.ExportSchemaVersion,
		ExportedAt:     now.Unix(),
	}
	if err := enc.Encode(header); err != nil {
		return nil, err
	}
	for i := range entries {
		if err := enc.Encode(capture.EntryToExportRecord(&entries[i])); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// renderMarkdown writes one section per entry. Every text is fenced so
// clipboard content never turns into markup.
func renderMarkdown(entries []capture.Entry, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("# Clipboard history\n\n")
	fmt.Fprintf(&b, "Exported %s, %d entries.\n", now.UTC().Format(time.RFC3339), len(entries))

	for _, e := range entries {
		b.WriteString("\n## ")
		b.WriteString(e.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		if e.Pinned {
			b.WriteString(" (pinned)")
		}
		b.WriteString("\n\n")

		meta := []string{"type: " + string(e.CaptureType)}
		if len(e.Tags) > 0 {
			meta = append(meta, "tags: "+strings.Join(e.Tags, ", "))
		}
		if e.SourceApp != nil {
			meta = append(meta, "app: "+*e.SourceApp)
		}
		if e.SourceURL != nil {
			meta = append(meta, "url: <"+*e.SourceURL+">")
		}
		for _, m := range meta {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}

		fence := codeFence(e.Text)
		b.WriteString("\n")
		b.WriteString(fence)
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(e.Text, "\n"))
		b.WriteString("\n")
		b.WriteString(fence)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// renderHTML converts the markdown export to a standalone HTML page.
func renderHTML(entries []capture.Entry, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert(renderMarkdown(entries, now), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	page.WriteString(html.EscapeString("Clipboard history"))
	page.WriteString("</title>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// codeFence returns a backtick fence longer than any backtick run in text.
func codeFence(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}
