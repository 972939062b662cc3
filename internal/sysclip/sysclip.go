// Package sysclip implements the pipeline's clipboard and window
// capabilities on top of the host OS.
//
// Text goes through github.com/atotto/clipboard. Images and the foreground
// window need helpers the library does not cover, so they shell out to
// whichever of wl-paste, xclip, pngpaste, xdotool or osascript is present.
// A missing helper means the capability is absent, not an error.
package sysclip

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/pipeline"
)

// commandTimeout bounds every helper invocation.
const commandTimeout = 2 * time.Second

// command is one helper invocation.
type command struct {
	name string
	args []string
}

// runner executes a helper and returns its stdout. Swapped in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// lookup reports whether a helper is installed. Swapped in tests.
type lookup func(name string) bool

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func execLookup(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// System is the host clipboard. It satisfies pipeline.Clipboard.
type System struct {
	run    runner
	has    lookup
	decode func([]byte) (*pipeline.Image, error)
	images []command

	mu      sync.Mutex
	lastRaw string
	lastImg *pipeline.Image
}

// New returns the clipboard for the running platform.
func New() *System {
	return newSystem(runtime.GOOS, os.Getenv("WAYLAND_DISPLAY") != "", execRunner, execLookup)
}

func newSystem(goos string, wayland bool, run runner, has lookup) *System {
	return &System{run: run, has: has, decode: DecodePNG, images: imageCommands(goos, wayland)}
}

// ReadText reads the clipboard text.
func (s *System) ReadText(context.Context) (string, error) {
	if clipboard.Unsupported {
		return "", fmt.Errorf("clipboard text is unsupported on %s", runtime.GOOS)
	}
	return clipboard.ReadAll()
}

// WriteText replaces the clipboard text.
func (s *System) WriteText(_ context.Context, text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard text is unsupported on %s", runtime.GOOS)
	}
	return clipboard.WriteAll(text)
}

// ReadImage returns the clipboard image, decoded to RGBA, or an error when
// the clipboard holds no image or no helper is available. The result
// carries the hash of the helper's raw output; output identical to the
// previous read returns the previous image without decoding again.
func (s *System) ReadImage(ctx context.Context) (*pipeline.Image, error) {
	out, err := s.first(ctx, s.images)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	hash := capture.HashBytes(out)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastImg != nil && hash == s.lastRaw {
		return s.lastImg, nil
	}
	img, err := s.decode(out)
	if err != nil {
		return nil, err
	}
	img.Hash = hash
	s.lastRaw, s.lastImg = hash, img
	return img, nil
}

// first runs the first installed helper in cmds.
func (s *System) first(ctx context.Context, cmds []command) ([]byte, error) {
	for _, c := range cmds {
		if !s.has(c.name) {
			continue
		}
		return s.run(ctx, c.name, c.args...)
	}
	return nil, fmt.Errorf("no clipboard helper installed")
}

// DecodePNG converts PNG bytes to a pipeline.Image.
func DecodePNG(data []byte) (*pipeline.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode clipboard image: %w", err)
	}
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &pipeline.Image{Width: b.Dx(), Height: b.Dy(), Pixels: rgba.Pix}, nil
}

func imageCommands(goos string, wayland bool) []command {
	switch goos {
	case "darwin":
		return []command{{"pngpaste", []string{"-"}}}
	case "linux", "freebsd", "openbsd", "netbsd":
		x11 := command{"xclip", []string{"-selection", "clipboard", "-t", "image/png", "-o"}}
		wl := command{"wl-paste", []string{"--no-newline", "--type", "image/png"}}
		if wayland {
			return []command{wl, x11}
		}
		return []command{x11, wl}
	}
	return nil
}

// Secondary reads text through command-line helpers. It is the pipeline's
// fallback when the library read fails.
type Secondary struct {
	run  runner
	has  lookup
	cmds []command
}

// NewSecondary returns the command-line text reader for this platform.
func NewSecondary() *Secondary {
	return newSecondary(runtime.GOOS, os.Getenv("WAYLAND_DISPLAY") != "", execRunner, execLookup)
}

func newSecondary(goos string, wayland bool, run runner, has lookup) *Secondary {
	var cmds []command
	switch goos {
	case "darwin":
		cmds = []command{{"pbpaste", nil}}
	case "linux", "freebsd", "openbsd", "netbsd":
		wl := command{"wl-paste", []string{"--no-newline"}}
		xsel := command{"xsel", []string{"--clipboard", "--output"}}
		xclip := command{"xclip", []string{"-selection", "clipboard", "-o"}}
		if wayland {
			cmds = []command{wl, xsel, xclip}
		} else {
			cmds = []command{xsel, xclip, wl}
		}
	}
	return &Secondary{run: run, has: has, cmds: cmds}
}

// ReadText runs the first installed helper.
func (s *Secondary) ReadText(ctx context.Context) (string, error) {
	for _, c := range s.cmds {
		if !s.has(c.name) {
			continue
		}
		out, err := s.run(ctx, c.name, c.args...)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return "", fmt.Errorf("no clipboard helper installed")
}

// Inspector reports the foreground window. It satisfies
// pipeline.WindowInspector.
type Inspector struct {
	goos string
	run  runner
	has  lookup
}

// NewInspector returns the window inspector for this platform.
func NewInspector() *Inspector {
	return &Inspector{goos: runtime.GOOS, run: execRunner, has: execLookup}
}

const (
	osascriptTitle = `tell application "System Events" to tell (first application process whose frontmost is true) to get name of front window`
	osascriptApp   = `tell application "System Events" to get name of first application process whose frontmost is true`
)

// ForegroundWindow returns the active window. ok is false when no helper
// can answer.
func (i *Inspector) ForegroundWindow(ctx context.Context) (pipeline.Window, bool) {
	switch i.goos {
	case "darwin":
		if !i.has("osascript") {
			return pipeline.Window{}, false
		}
		app, err := i.run(ctx, "osascript", "-e", osascriptApp)
		if err != nil {
			return pipeline.Window{}, false
		}
		// Apps without windows fail the title query; the app name still counts.
		title, _ := i.run(ctx, "osascript", "-e", osascriptTitle)
		return pipeline.Window{
			Title: strings.TrimSpace(string(title)),
			App:   strings.TrimSpace(string(app)),
		}, true
	case "linux", "freebsd", "openbsd", "netbsd":
		if !i.has("xdotool") {
			return pipeline.Window{}, false
		}
		title, err := i.run(ctx, "xdotool", "getactivewindow", "getwindowname")
		if err != nil {
			return pipeline.Window{}, false
		}
		w := pipeline.Window{Title: strings.TrimSpace(string(title))}
		if pid, err := i.run(ctx, "xdotool", "getactivewindow", "getwindowpid"); err == nil {
			w.App = processName(strings.TrimSpace(string(pid)))
		}
		return w, true
	}
	return pipeline.Window{}, false
}

// processName maps a pid to its command name via /proc.
func processName(pid string) string {
	if _, err := strconv.Atoi(pid); err != nil {
		return ""
	}
	comm, err := os.ReadFile("/proc/" + pid + "/comm")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(comm))
}
