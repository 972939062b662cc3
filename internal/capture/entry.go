package capture

import "time"

// Type is the inferred kind of a captured text.
type Type string

const (
	TypeText Type = "text"
	TypeLink Type = "link"
	TypeCode Type = "code"
)

// Entry is one retained clipboard capture.
type Entry struct {
	// ID is a ULID generated at capture time
	ID string `json:"id"`

	// Text is the raw captured string, untrimmed so restore is faithful
	Text string `json:"text"`

	// Pinned entries are exempt from capacity eviction and sort first
	Pinned bool `json:"pinned"`

	// Timestamp is the capture instant
	Timestamp time.Time `json:"timestamp"`

	// Provenance, best-effort
	SourceApp   *string `json:"source_app,omitempty"`
	WindowTitle *string `json:"window_title,omitempty"`
	SourceURL   *string `json:"source_url,omitempty"`

	CaptureType Type     `json:"capture_type"`
	Tags        []string `json:"tags"`

	// ContentHash is Hash(Text); empty only for legacy entries
	ContentHash string `json:"content_hash,omitempty"`
}

// DedupKey returns the identity used for history deduplication:
// the content hash, or the raw text for legacy entries without one.
func (e *Entry) DedupKey() string {
	if e.ContentHash != "" {
		return "h:" + e.ContentHash
	}
	return "t:" + e.Text
}

// FillDerived repairs fields that older records may lack.
func (e *Entry) FillDerived() {
	if e.CaptureType == "" {
		e.CaptureType = TypeText
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
}

// Clone returns a deep copy so callers cannot mutate store-owned slices.
func (e Entry) Clone() Entry {
	c := e
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	c.SourceApp = cloneString(e.SourceApp)
	c.WindowTitle = cloneString(e.WindowTitle)
	c.SourceURL = cloneString(e.SourceURL)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// MergeTags appends tags from each list in order, dropping blanks and
// duplicates.
func MergeTags(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, list := range lists {
		for _, t := range list {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
