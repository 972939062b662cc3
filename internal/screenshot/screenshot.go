// Package screenshot decides whether a captured bitmap is a probable
// screenshot worth surfacing, as opposed to an arbitrary image copy.
package screenshot

import (
	"strings"
	"sync"
	"time"
)

// Size fallback thresholds.
const (
	MinWidth       = 800
	MinHeight      = 600
	MinTotalPixels = 400_000
)

// DefaultSnipWindow is how long after a screenshot tool was last in the
// foreground an arriving image still counts as a snip.
const DefaultSnipWindow = 3 * time.Second

// toolFragments are lower-case substrings of window titles belonging to
// screenshot tools. Adding a tool or locale is a new row.
var toolFragments = map[string]bool{
	"snipping tool":         true,
	"snip & sketch":         true,
	"screen sketch":         true,
	"screenshot":            true,
	"screen capture":        true,
	"screencapture":         true,
	"greenshot":             true,
	"sharex":                true,
	"lightshot":             true,
	"flameshot":             true,
	"spectacle":             true,
	"ksnip":                 true,
	"shutter":               true,
	"shottr":                true,
	"cleanshot":             true,
	"skitch":                true,
	"recortes":              true, // es: Recortes
	"captura de pantalla":   true, // es
	"capture d'écran":       true, // fr
	"outil capture":         true, // fr: Outil Capture d'écran
	"bildschirmfoto":        true, // de
	"ausschneiden":          true, // de: Snipping Tool
	"cattura schermo":       true, // it
	"strumento di cattura":  true, // it
	"ferramenta de captura": true, // pt
	"captura de ecrã":       true, // pt-PT
	"knipprogramma":         true, // nl
	"skärmklipp":            true, // sv
	"ножницы":               true, // ru: Snipping Tool
	"снимок экрана":         true, // ru
	"截图":                    true, // zh-Hans
	"截圖":                    true, // zh-Hant
	"スクリーンショット":             true, // ja
	"切り取り":                  true, // ja: Snipping Tool
	"스크린샷":                  true, // ko
	"캡처 도구":                 true, // ko: Snipping Tool
}

// Verdict is the outcome of Decide.
type Verdict struct {
	Probable bool
	Reason   string // "window_title", "recent_snip", "size", or ""
}

// Heuristic classifies images using window-title signals with a size
// fallback. Safe for concurrent use.
type Heuristic struct {
	mu        sync.RWMutex
	fragments map[string]bool
	window    time.Duration
	lastSnip  time.Time
}

// New creates a Heuristic. extra adds tool-name fragments beyond the
// built-in table; window <= 0 uses DefaultSnipWindow.
func New(extra []string, window time.Duration) *Heuristic {
	h := &Heuristic{window: window}
	if h.window <= 0 {
		h.window = DefaultSnipWindow
	}
	h.SetExtraTools(extra)
	return h
}

// SetExtraTools replaces the configured extra fragments.
func (h *Heuristic) SetExtraTools(extra []string) {
	fragments := make(map[string]bool, len(toolFragments)+len(extra))
	for f := range toolFragments {
		fragments[f] = true
	}
	for _, f := range extra {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			fragments[f] = true
		}
	}
	h.mu.Lock()
	h.fragments = fragments
	h.mu.Unlock()
}

// SetWindow changes the trailing recent-snip window.
func (h *Heuristic) SetWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultSnipWindow
	}
	h.mu.Lock()
	h.window = d
	h.mu.Unlock()
}

// MatchesTool reports whether title looks like a screenshot tool window.
func (h *Heuristic) MatchesTool(title string) bool {
	title = strings.ToLower(title)
	if title == "" {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for f := range h.fragments {
		if strings.Contains(title, f) {
			return true
		}
	}
	return false
}

// Observe samples the foreground title. It is called every tick, whether
// or not an image arrived, and records when a tool was last seen.
func (h *Heuristic) Observe(title string, now time.Time) bool {
	if !h.MatchesTool(title) {
		return false
	}
	h.mu.Lock()
	h.lastSnip = now
	h.mu.Unlock()
	return true
}

// RecentSnip reports whether a tool was foregrounded within the window.
func (h *Heuristic) RecentSnip(now time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastSnip.IsZero() {
		return false
	}
	return now.Sub(h.lastSnip) <= h.window
}

// Decide classifies an image of width×height. titleAvailable is false on
// platforms without window-title introspection, which use only the size
// fallback.
func (h *Heuristic) Decide(width, height int, title string, titleAvailable bool, now time.Time) Verdict {
	if titleAvailable {
		if h.MatchesTool(title) {
			return Verdict{Probable: true, Reason: "window_title"}
		}
		if h.RecentSnip(now) {
			return Verdict{Probable: true, Reason: "recent_snip"}
		}
	}
	if ProbableBySize(width, height) {
		return Verdict{Probable: true, Reason: "size"}
	}
	return Verdict{}
}

// ProbableBySize is the size-only fallback.
func ProbableBySize(width, height int) bool {
	if width > MinWidth && height > MinHeight {
		return true
	}
	return width*height > MinTotalPixels
}
