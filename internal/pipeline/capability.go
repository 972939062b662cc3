package pipeline

import (
	"context"

	"github.com/hpungsan/clipnest/internal/capture"
)

// Image is a clipboard bitmap. Pixels are 8-bit RGBA, row-major,
// len(Pixels) == Width*Height*4.
type Image struct {
	Width  int
	Height int
	Pixels []byte
	// Hash identifies the source bytes when the reader already knows it.
	// Empty means the pipeline hashes Pixels itself.
	Hash string
}

// Clipboard is the system clipboard.
type Clipboard interface {
	ReadText(ctx context.Context) (string, error)
	ReadImage(ctx context.Context) (*Image, error)
	WriteText(ctx context.Context, text string) error
}

// TextReader is a secondary text read path tried when Clipboard.ReadText
// fails.
type TextReader interface {
	ReadText(ctx context.Context) (string, error)
}

// Window describes the foreground window.
type Window struct {
	Title string
	App   string
}

// WindowInspector reports the foreground window. ok is false when the
// platform cannot answer.
type WindowInspector interface {
	ForegroundWindow(ctx context.Context) (w Window, ok bool)
}

// Emitter receives UI notifications.
type Emitter interface {
	Emit(name string, payload any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(name string, payload any)

// Emit calls f(name, payload).
func (f EmitterFunc) Emit(name string, payload any) {
	f(name, payload)
}

// Emitters fans a notification out to every member.
type Emitters []Emitter

// Emit forwards to each non-nil emitter in order.
func (es Emitters) Emit(name string, payload any) {
	for _, e := range es {
		if e != nil {
			e.Emit(name, payload)
		}
	}
}

// Persister saves the ordered history.
type Persister interface {
	Save(ctx context.Context, entries []capture.Entry) error
}

// Event names.
const (
	EventClipboardChanged    = "clipboard-changed"
	EventScreenshotAvailable = "screenshot-available"
	EventHistoryChanged      = "history-changed"
)

// ClipboardChanged is the payload of EventClipboardChanged.
type ClipboardChanged struct {
	Text    string `json:"text"`
	FromApp bool   `json:"from_app"`
}

// ScreenshotAvailable is the payload of EventScreenshotAvailable.
// ImageData is a base64-encoded PNG.
type ScreenshotAvailable struct {
	ImageData string `json:"image_data"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Reason    string `json:"reason"`
}

// HistoryChanged is the payload of EventHistoryChanged.
type HistoryChanged struct {
	Count int `json:"count"`
}
