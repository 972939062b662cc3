// Package pipeline turns clipboard polling into history mutations and UI
// notifications.
//
// Each tick samples the foreground window, reads the clipboard text
// (falling back to a secondary reader), filters it by length and rules,
// inserts it into the history store and emits clipboard-changed. Images are
// checked independently on every tick and reported through
// screenshot-available when the screenshot heuristic says so.
//
// Nothing in a tick is fatal. Read and persistence failures are logged and
// the next tick starts fresh.
package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/config"
	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/history"
	"github.com/hpungsan/clipnest/internal/rules"
	"github.com/hpungsan/clipnest/internal/screenshot"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Options wires a Pipeline. Clipboard and Store are required.
type Options struct {
	Clipboard Clipboard
	Fallback  TextReader      // optional
	Window    WindowInspector // optional
	Emitter   Emitter         // optional
	Persister Persister       // optional

	Store     *history.Store
	Settings  *Settings
	Heuristic *screenshot.Heuristic

	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pipeline is the capture orchestrator.
type Pipeline struct {
	clip      Clipboard
	fallback  TextReader
	window    WindowInspector
	emitter   Emitter
	persister Persister

	store     *history.Store
	settings  *Settings
	heuristic *screenshot.Heuristic

	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex // guards the last* fields and saver
	lastText      string
	lastInternal  string
	lastImageHash string

	saver *saver

	// saveMu orders snapshots with writes: the last write is the newest list.
	saveMu sync.Mutex
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Clipboard == nil {
		return nil, fmt.Errorf("pipeline: clipboard is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: history store is required")
	}
	p := &Pipeline{
		clip:      opts.Clipboard,
		fallback:  opts.Fallback,
		window:    opts.Window,
		emitter:   opts.Emitter,
		persister: opts.Persister,
		store:     opts.Store,
		settings:  opts.Settings,
		heuristic: opts.Heuristic,
		interval:  opts.Interval,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if p.emitter == nil {
		p.emitter = EmitterFunc(func(string, any) {})
	}
	if p.settings == nil {
		p.settings = NewSettings(config.DefaultConfig())
	}
	if p.heuristic == nil {
		p.heuristic = screenshot.New(nil, 0)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Store returns the history store the pipeline inserts into.
func (p *Pipeline) Store() *history.Store { return p.store }

// Settings returns the live pipeline settings.
func (p *Pipeline) Settings() *Settings { return p.settings }

// Heuristic returns the screenshot heuristic.
func (p *Pipeline) Heuristic() *screenshot.Heuristic { return p.heuristic }

// Apply pushes a (re)loaded config into the pipeline and its collaborators.
// Limit and dedup window are validated by the store; on error nothing else
// is applied.
func (p *Pipeline) Apply(cfg *config.Config) error {
	if err := p.store.SetLimit(cfg.HistoryLimit); err != nil {
		return err
	}
	if err := p.store.SetDedupWindow(cfg.DedupWindow()); err != nil {
		return err
	}
	p.settings.Apply(cfg)
	p.heuristic.SetExtraTools(cfg.ScreenshotTools)
	p.heuristic.SetWindow(cfg.SnipWindow())
	p.Changed(context.Background())
	return nil
}

// Run polls until ctx is done. While Run is active, saves are handed to a
// background writer that coalesces bursts; a pending save is flushed on
// the way out.
func (p *Pipeline) Run(ctx context.Context) error {
	s := newSaver(p)
	p.mu.Lock()
	p.saver = s
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(ctx)
	}()

	defer func() {
		p.mu.Lock()
		p.saver = nil
		p.mu.Unlock()
		wg.Wait()
		select {
		case <-s.pending:
			p.save(context.WithoutCancel(ctx))
		default:
		}
	}()

	p.logger.Info("pipeline started", "interval", p.interval.String())
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Tick(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one polling step.
func (p *Pipeline) Tick(ctx context.Context) {
	now := p.now()

	var win Window
	var winOK bool
	if p.window != nil {
		win, winOK = p.window.ForegroundWindow(ctx)
		if winOK {
			p.heuristic.Observe(win.Title, now)
		}
	}

	if !p.settings.Monitoring() {
		return
	}

	p.captureText(ctx, now, win, winOK)
	p.captureImage(ctx, now, win, winOK)
}

func (p *Pipeline) captureText(ctx context.Context, now time.Time, win Window, winOK bool) {
	text, ok := p.readText(ctx)
	if !ok || text == "" {
		return
	}

	p.mu.Lock()
	if text == p.lastText {
		p.mu.Unlock()
		return
	}
	p.lastText = text
	fromApp := text == p.lastInternal
	if fromApp {
		p.lastInternal = ""
	}
	p.mu.Unlock()

	if fromApp {
		p.emitter.Emit(EventClipboardChanged, ClipboardChanged{Text: text, FromApp: true})
		return
	}

	trimmed := strings.TrimSpace(text)
	kind := capture.Classify(trimmed)
	if kind == capture.TypeText && utf8.RuneCountInString(trimmed) < p.settings.MinLength() {
		p.logger.Debug("capture below minimum length", "length", utf8.RuneCountInString(trimmed))
		return
	}

	var sourceApp, windowTitle, sourceURL *string
	if winOK {
		sourceApp = nonEmpty(win.App)
		windowTitle = nonEmpty(win.Title)
	}
	if kind == capture.TypeLink {
		sourceURL = &trimmed
	}

	res := p.settings.Rules().Evaluate(rules.Candidate{
		Text:        trimmed,
		SourceURL:   sourceURL,
		SourceApp:   sourceApp,
		CaptureType: kind,
	})
	if res.Ignore {
		p.logger.Debug("capture ignored by rule")
		return
	}

	id, err := capture.NewID(now)
	if err != nil {
		p.logger.Warn("failed to generate entry id", "error", err)
		return
	}

	var autoTags []string
	if sourceURL != nil {
		autoTags = capture.AutoTags(*sourceURL)
	}

	p.store.Insert(capture.Entry{
		ID:          id,
		Text:        text,
		Timestamp:   now,
		SourceApp:   sourceApp,
		WindowTitle: windowTitle,
		SourceURL:   sourceURL,
		CaptureType: kind,
		Tags:        capture.MergeTags(res.Tags, autoTags),
		ContentHash: capture.Hash(text),
	})
	p.Changed(ctx)
	p.emitter.Emit(EventClipboardChanged, ClipboardChanged{Text: text, FromApp: false})
}

// readText tries the clipboard, then the secondary reader.
func (p *Pipeline) readText(ctx context.Context) (string, bool) {
	text, err := p.clip.ReadText(ctx)
	if err == nil {
		return text, true
	}
	if p.fallback == nil {
		p.logger.Debug("clipboard text read failed", "error", err)
		return "", false
	}
	text, ferr := p.fallback.ReadText(ctx)
	if ferr != nil {
		p.logger.Debug("clipboard text read failed", "error", err, "fallback_error", ferr)
		return "", false
	}
	return text, true
}

func (p *Pipeline) captureImage(ctx context.Context, now time.Time, win Window, winOK bool) {
	img, err := p.clip.ReadImage(ctx)
	if err != nil || img == nil || img.Width <= 0 || img.Height <= 0 {
		return
	}

	hash := img.Hash
	if hash == "" {
		hash = capture.HashBytes(img.Pixels)
	}
	p.mu.Lock()
	if hash == p.lastImageHash {
		p.mu.Unlock()
		return
	}
	p.lastImageHash = hash
	p.mu.Unlock()

	verdict := p.heuristic.Decide(img.Width, img.Height, win.Title, winOK, now)
	if !verdict.Probable {
		return
	}

	data, err := encodePNG(img)
	if err != nil {
		p.logger.Warn("failed to encode clipboard image", "error", err)
		return
	}
	p.emitter.Emit(EventScreenshotAvailable, ScreenshotAvailable{
		ImageData: data,
		Width:     img.Width,
		Height:    img.Height,
		Reason:    verdict.Reason,
	})
}

// Restore writes text to the clipboard and marks it as app-originated so
// the next tick does not capture it again.
func (p *Pipeline) Restore(ctx context.Context, text string) error {
	p.mu.Lock()
	prev := p.lastInternal
	p.lastInternal = text
	p.mu.Unlock()

	if err := p.clip.WriteText(ctx, text); err != nil {
		p.mu.Lock()
		p.lastInternal = prev
		p.mu.Unlock()
		return errors.NewUnavailable("clipboard", err)
	}
	return nil
}

// Changed persists the history (when enabled) and emits history-changed.
// Command handlers call it after every mutation.
func (p *Pipeline) Changed(ctx context.Context) {
	p.Persist(ctx)
	p.emitter.Emit(EventHistoryChanged, HistoryChanged{Count: p.store.Len()})
}

// Persist hands the current history to the persister. Under Run the write
// happens in the background; otherwise it happens before Persist returns.
// Failures are logged.
func (p *Pipeline) Persist(ctx context.Context) {
	if p.persister == nil || !p.settings.Persistence() {
		return
	}
	// The request is made under p.mu so Run cannot detach the saver and
	// drain it between the check and the request.
	p.mu.Lock()
	if s := p.saver; s != nil {
		s.request()
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.save(ctx)
}

func (p *Pipeline) save(ctx context.Context) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	if err := p.persister.Save(ctx, p.store.List()); err != nil {
		p.logger.Warn("failed to persist history", "error", err)
	}
}

func encodePNG(img *Image) (string, error) {
	if len(img.Pixels) != img.Width*img.Height*4 {
		return "", fmt.Errorf("pixel buffer is %d bytes, want %d", len(img.Pixels), img.Width*img.Height*4)
	}
	rgba := &image.RGBA{
		Pix:    img.Pixels,
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
