package ops

import (
	"strings"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/pipeline"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit      int    // default: 50, max: 500
	Offset     int    // default: 0
	Type       string // optional: text, link or code
	Tag        string // optional exact tag match
	Query      string // optional, matched against normalized text
	PinnedOnly bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []capture.Entry `json:"items"`
	Pagination Pagination      `json:"pagination"`
	Sort       string          `json:"sort"`
}

// List returns history entries in display order with optional filters.
func List(p *pipeline.Pipeline, input ListInput) (*ListOutput, error) {
	var kind capture.Type
	switch capture.Type(strings.ToLower(strings.TrimSpace(input.Type))) {
	case "":
	case capture.TypeText:
		kind = capture.TypeText
	case capture.TypeLink:
		kind = capture.TypeLink
	case capture.TypeCode:
		kind = capture.TypeCode
	default:
		return nil, errors.NewInvalidRequest("type must be one of: text, link, code")
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	tag := strings.TrimSpace(input.Tag)
	query := capture.Normalize(input.Query)

	matched := make([]capture.Entry, 0)
	for _, e := range p.Store().List() {
		if input.PinnedOnly && !e.Pinned {
			continue
		}
		if kind != "" && e.CaptureType != kind {
			continue
		}
		if tag != "" && !hasTag(e.Tags, tag) {
			continue
		}
		if query != "" && !strings.Contains(capture.Normalize(e.Text), query) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	start := min(offset, total)
	end := min(start+limit, total)
	items := matched[start:end]

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: end < total,
			Total:   total,
		},
		Sort: "pinned_then_recent",
	}, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
