package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/config"
	"github.com/hpungsan/clipnest/internal/jsonstore"
	"github.com/hpungsan/clipnest/internal/logging"
	"github.com/hpungsan/clipnest/internal/ops"
	"github.com/hpungsan/clipnest/internal/pipeline"
)

type testClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *testClipboard) ReadText(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *testClipboard) ReadImage(context.Context) (*pipeline.Image, error) {
	return nil, fmt.Errorf("no image")
}

func (c *testClipboard) WriteText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

// setupTestRuntime opens a runtime over a temporary base directory.
func setupTestRuntime(t *testing.T, baseDir, storage string) (*runtime, *testClipboard) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage = storage
	clip := &testClipboard{}
	rt, err := newRuntime(context.Background(), baseDir, cfg, logging.Discard(), system{Clipboard: clip})
	if err != nil {
		t.Fatalf("failed to open runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt, clip
}

// seed inserts entries with ids e1..eN, oldest first.
func seed(rt *runtime, texts ...string) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, text := range texts {
		rt.p.Store().Insert(capture.Entry{
			ID:          fmt.Sprintf("e%d", i+1),
			Text:        text,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			CaptureType: capture.Classify(text),
			Tags:        capture.AutoTags(text),
			ContentHash: capture.Hash(text),
		})
	}
}

// runCLI runs args and returns captured stdout.
func runCLI(t *testing.T, rt *runtime, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(rt)

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := app.Run(append([]string{"clipnest"}, args...))

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	return buf.String(), err
}

// withStdin replaces stdin with content for the duration of fn.
func withStdin(t *testing.T, content string, fn func()) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	go func() {
		_, _ = w.WriteString(content)
		w.Close()
	}()

	oldStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = oldStdin }()
	fn()
}

func decodeOutput[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	return v
}

// TestCLIList tests the list command.
func TestCLIList(t *testing.T) {
	rt, _ := setupTestRuntime(t, t.TempDir(), config.StorageJSON)
	seed(rt, "first entry", "https://github.com/a/b", "third entry")

	out, err := runCLI(t, rt, "list", "--limit=2")
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	output := decodeOutput[ops.ListOutput](t, out)
	if len(output.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(output.Items))
	}
	if output.Items[0].ID != "e3" {
		t.Errorf("expected newest first, got %s", output.Items[0].ID)
	}
	if !output.Pagination.HasMore || output.Pagination.Total != 3 {
		t.Errorf("unexpected pagination: %+v", output.Pagination)
	}

	out, err = runCLI(t, rt, "list", "--type=link")
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	output = decodeOutput[ops.ListOutput](t, out)
	if len(output.Items) != 1 || output.Items[0].ID != "e2" {
		t.Errorf("expected only e2, got %+v", output.Items)
	}
}

// TestCLIPin tests pin and unpin.
func TestCLIPin(t *testing.T) {
	rt, _ := setupTestRuntime(t, t.TempDir(), config.StorageJSON)
	seed(rt, "first entry", "second entry")

	if _, err := runCLI(t, rt, "pin", "e1"); err != nil {
		t.Fatalf("pin command failed: %v", err)
	}
	out, err := runCLI(t, rt, "list")
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	output := decodeOutput[ops.ListOutput](t, out)
	if output.Items[0].ID != "e1" || !output.Items[0].Pinned {
		t.Errorf("expected pinned e1 first, got %+v", output.Items[0])
	}

	if _, err := runCLI(t, rt, "unpin", "e1"); err != nil {
		t.Fatalf("unpin command failed: %v", err)
	}
	if e, _ := rt.p.Store().Get("e1"); e.Pinned {
		t.Error("expected e1 to be unpinned")
	}
}

// TestCLIDeleteAndClear tests delete and clear --keep-pinned.
func TestCLIDeleteAndClear(t *testing.T) {
	rt, _ := setupTestRuntime(t, t.TempDir(), config.StorageJSON)
	seed(rt, "one entry", "two entry", "three entry")
	rt.p.Store().SetPinned("e1", true)

	if _, err := runCLI(t, rt, "delete", "e2"); err != nil {
		t.Fatalf("delete command failed: %v", err)
	}
	out, err := runCLI(t, rt, "clear", "--keep-pinned")
	if err != nil {
		t.Fatalf("clear command failed: %v", err)
	}
	output := decodeOutput[ops.ClearOutput](t, out)
	if output.Removed != 1 || output.Remaining != 1 {
		t.Errorf("expected removed=1 remaining=1, got %+v", output)
	}
}

// TestCLIRestore tests restore by id and by literal text.
func TestCLIRestore(t *testing.T) {
	rt, clip := setupTestRuntime(t, t.TempDir(), config.StorageJSON)
	seed(rt, "first entry")

	if _, err := runCLI(t, rt, "restore", "e1"); err != nil {
		t.Fatalf("restore command failed: %v", err)
	}
	if clip.text != "first entry" {
		t.Errorf("expected clipboard=first entry, got %q", clip.text)
	}

	if _, err := runCLI(t, rt, "restore", "--text=literal"); err != nil {
		t.Fatalf("restore command failed: %v", err)
	}
	if clip.text != "literal" {
		t.Errorf("expected clipboard=literal, got %q", clip.text)
	}

	// The restored text is not captured back into history
	rt.p.Tick(context.Background())
	if rt.p.Store().Len() != 1 {
		t.Errorf("expected 1 entry after tick, got %d", rt.p.Store().Len())
	}
}

// TestCLISettings tests showing and updating settings.
func TestCLISettings(t *testing.T) {
	dir := t.TempDir()
	rt, _ := setupTestRuntime(t, dir, config.StorageJSON)
	seed(rt, "one entry", "two entry", "three entry")

	out, err := runCLI(t, rt, "settings")
	if err != nil {
		t.Fatalf("settings command failed: %v", err)
	}
	output := decodeOutput[ops.SettingsOutput](t, out)
	if output.HistoryLimit != 100 || !output.MonitoringEnabled {
		t.Errorf("unexpected defaults: %+v", output)
	}

	out, err = runCLI(t, rt, "settings", "--history-limit=2", "--monitoring=false")
	if err != nil {
		t.Fatalf("settings command failed: %v", err)
	}
	output = decodeOutput[ops.SettingsOutput](t, out)
	if output.HistoryLimit != 2 || output.MonitoringEnabled {
		t.Errorf("settings not applied: %+v", output)
	}
	if rt.p.Store().Len() != 2 {
		t.Errorf("expected eviction to 2 entries, got %d", rt.p.Store().Len())
	}

	saved, err := config.Load(dir)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	if saved.HistoryLimit != 2 || saved.Monitoring() {
		t.Errorf("config not saved: limit=%d monitoring=%v", saved.HistoryLimit, saved.Monitoring())
	}

	if _, err := runCLI(t, rt, "settings", "--history-limit=0"); err == nil {
		t.Error("expected error for history-limit=0")
	}
}

// TestCLIRules tests replacing rules from stdin.
func TestCLIRules(t *testing.T) {
	rt, clip := setupTestRuntime(t, t.TempDir(), config.StorageJSON)

	rulesJSON := `[
		// tag anything from GitHub
		{"pattern": "^https://github\\.com/", "field": "url", "action": "tag", "tag": "repo"},
		{"pattern": "password", "field": "text", "action": "ignore"},
	]`

	var out string
	var err error
	withStdin(t, rulesJSON, func() {
		out, err = runCLI(t, rt, "rules")
	})
	if err != nil {
		t.Fatalf("rules command failed: %v", err)
	}
	output := decodeOutput[ops.SetRulesOutput](t, out)
	if output.Count != 2 {
		t.Errorf("expected 2 rules, got %d", output.Count)
	}

	clip.text = "my password is hunter2"
	rt.p.Tick(context.Background())
	if rt.p.Store().Len() != 0 {
		t.Errorf("expected ignored capture, got %d entries", rt.p.Store().Len())
	}

	clip.text = "https://github.com/hpungsan/clipnest"
	rt.p.Tick(context.Background())
	entries := rt.p.Store().List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	found := false
	for _, tag := range entries[0].Tags {
		if tag == "repo" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected repo tag, got %v", entries[0].Tags)
	}
}

// TestCLIExportImport tests export followed by import into a fresh runtime.
func TestCLIExportImport(t *testing.T) {
	rt, _ := setupTestRuntime(t, t.TempDir(), config.StorageJSON)
	seed(rt, "first entry", "second entry")

	exportPath := filepath.Join(t.TempDir(), "history.jsonl")
	out, err := runCLI(t, rt, "export", "--path="+exportPath)
	if err != nil {
		t.Fatalf("export command failed: %v", err)
	}
	exported := decodeOutput[ops.ExportOutput](t, out)
	if exported.Count != 2 {
		t.Errorf("expected 2 exported, got %d", exported.Count)
	}

	mdPath := filepath.Join(t.TempDir(), "history.md")
	if _, err := runCLI(t, rt, "export", "--path="+mdPath, "--format=markdown"); err != nil {
		t.Fatalf("markdown export failed: %v", err)
	}
	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("failed to read markdown export: %v", err)
	}
	if !strings.Contains(string(md), "first entry") {
		t.Errorf("markdown export missing entry text:\n%s", md)
	}

	dst, _ := setupTestRuntime(t, t.TempDir(), config.StorageJSON)
	out, err = runCLI(t, dst, "import", "--path="+exportPath)
	if err != nil {
		t.Fatalf("import command failed: %v", err)
	}
	imported := decodeOutput[ops.ImportOutput](t, out)
	if imported.Imported != 2 {
		t.Errorf("expected 2 imported, got %d", imported.Imported)
	}
}

// TestCLIErrorHandling tests error handling in CLI commands.
func TestCLIErrorHandling(t *testing.T) {
	rt, _ := setupTestRuntime(t, t.TempDir(), config.StorageJSON)

	tests := []struct {
		name string
		args []string
	}{
		{"pin not found", []string{"pin", "nonexistent"}},
		{"delete without id", []string{"delete"}},
		{"restore without id or text", []string{"restore"}},
		{"unknown list type", []string{"list", "--type=image"}},
		{"bad export format", []string{"export", "--format=pdf"}},
		{"import missing file", []string{"import", "--path=/nonexistent/history.jsonl"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// cli.Exit writes to stderr, so just verify the error is returned
			if _, err := runCLI(t, rt, tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// TestRuntimePersistence tests that captures survive a restart on both backends.
func TestRuntimePersistence(t *testing.T) {
	for _, storage := range []string{config.StorageJSON, config.StorageSQLite} {
		t.Run(storage, func(t *testing.T) {
			dir := t.TempDir()

			rt, clip := setupTestRuntime(t, dir, storage)
			if err := rt.acquire(); err != nil {
				t.Fatalf("acquire: %v", err)
			}
			clip.text = "persist me please"
			rt.p.Tick(context.Background())
			if rt.p.Store().Len() != 1 {
				t.Fatalf("expected 1 entry after tick, got %d", rt.p.Store().Len())
			}
			rt.Close()

			reopened, _ := setupTestRuntime(t, dir, storage)
			entries := reopened.p.Store().List()
			if len(entries) != 1 || entries[0].Text != "persist me please" {
				t.Errorf("expected persisted entry, got %+v", entries)
			}
		})
	}
}

// TestRuntimeCorruptHistory tests that a damaged history file is moved
// aside, not overwritten, and the runtime starts empty.
func TestRuntimeCorruptHistory(t *testing.T) {
	dir := t.TempDir()
	damaged := []byte(`[{"id": "e1", "text": "half a recor`)
	if err := os.WriteFile(filepath.Join(dir, jsonstore.FileName), damaged, 0600); err != nil {
		t.Fatalf("failed to write history file: %v", err)
	}

	rt, clip := setupTestRuntime(t, dir, config.StorageJSON)
	if rt.p.Store().Len() != 0 {
		t.Errorf("expected empty history, got %d entries", rt.p.Store().Len())
	}

	moved, err := filepath.Glob(filepath.Join(dir, jsonstore.FileName+".corrupt-*"))
	if err != nil || len(moved) != 1 {
		t.Fatalf("expected one moved-aside file, got %v (err %v)", moved, err)
	}
	got, err := os.ReadFile(moved[0])
	if err != nil {
		t.Fatalf("failed to read moved file: %v", err)
	}
	if !bytes.Equal(got, damaged) {
		t.Errorf("moved file = %q, want the original bytes", got)
	}

	// New captures land in a fresh file and leave the moved one alone.
	if err := rt.acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	clip.text = "after recovery"
	rt.p.Tick(context.Background())
	if got, _ := os.ReadFile(moved[0]); !bytes.Equal(got, damaged) {
		t.Error("moved file changed after a save")
	}
	if _, err := os.Stat(filepath.Join(dir, jsonstore.FileName)); err != nil {
		t.Errorf("expected a fresh history file: %v", err)
	}
}

// TestRuntimeUnreadableHistory tests that a history that cannot be read
// stops start-up instead of being replaced by an empty one.
func TestRuntimeUnreadableHistory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, jsonstore.FileName), 0700); err != nil {
		t.Fatalf("failed to create blocking directory: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Storage = config.StorageJSON
	rt, err := newRuntime(context.Background(), dir, cfg, logging.Discard(), system{Clipboard: &testClipboard{}})
	if err == nil {
		rt.Close()
		t.Fatal("expected newRuntime to fail on an unreadable history")
	}
}

// TestCLIRefusesMutationsWhileOwned tests a one-shot CLI running beside a
// watcher on the same base directory. History mutations are refused and a
// settings change does not overwrite the owner's history. Mutations work
// again once the owner exits.
func TestCLIRefusesMutationsWhileOwned(t *testing.T) {
	for _, storage := range []string{config.StorageJSON, config.StorageSQLite} {
		t.Run(storage, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			daemon, _ := setupTestRuntime(t, dir, storage)
			if err := daemon.acquire(); err != nil {
				t.Fatalf("daemon acquire: %v", err)
			}
			seed(daemon, "alpha entry", "beta entry")
			daemon.p.Persist(ctx)

			one, oneClip := setupTestRuntime(t, dir, storage)
			if one.p.Store().Len() != 2 {
				t.Fatalf("expected CLI to load 2 entries, got %d", one.p.Store().Len())
			}

			for _, args := range [][]string{
				{"pin", "e1"},
				{"unpin", "e1"},
				{"delete", "e1"},
				{"clear"},
				{"restore", "--text=from the cli"},
				{"import", "--path=" + filepath.Join(dir, "missing.jsonl")},
				{"watch"},
			} {
				_, err := runCLI(t, one, args...)
				if err == nil || !strings.Contains(err.Error(), "[BUSY]") {
					t.Errorf("%v: expected BUSY error, got %v", args, err)
				}
			}
			if oneClip.text != "" {
				t.Errorf("refused restore wrote the clipboard: %q", oneClip.text)
			}
			if _, err := runCLI(t, one, "list"); err != nil {
				t.Errorf("list should work beside the owner: %v", err)
			}

			// The owner changes its history after the CLI loaded its copy.
			if _, err := ops.Pin(ctx, daemon.p, ops.PinInput{ID: "e2", Pinned: true}); err != nil {
				t.Fatalf("daemon pin: %v", err)
			}
			if _, err := runCLI(t, one, "settings", "--min-length=3"); err != nil {
				t.Fatalf("settings beside the owner failed: %v", err)
			}

			reader, _ := setupTestRuntime(t, dir, storage)
			e2, ok := reader.p.Store().Get("e2")
			if !ok || !e2.Pinned {
				t.Errorf("owner's pin was overwritten by the CLI copy: %+v", e2)
			}

			if err := daemon.Close(); err != nil {
				t.Fatalf("daemon close: %v", err)
			}
			next, _ := setupTestRuntime(t, dir, storage)
			if _, err := runCLI(t, next, "pin", "e1"); err != nil {
				t.Fatalf("pin after owner exit failed: %v", err)
			}
			again, _ := setupTestRuntime(t, dir, storage)
			for _, id := range []string{"e1", "e2"} {
				if e, ok := again.p.Store().Get(id); !ok || !e.Pinned {
					t.Errorf("expected %s pinned on disk, got %+v", id, e)
				}
			}
		})
	}
}

// TestRuntimeEmitsToSink tests that events reach the installed sink.
func TestRuntimeEmitsToSink(t *testing.T) {
	rt, clip := setupTestRuntime(t, t.TempDir(), config.StorageJSON)

	var names []string
	rt.sink = pipeline.EmitterFunc(func(name string, _ any) {
		names = append(names, name)
	})

	clip.text = "hello clipboard"
	rt.p.Tick(context.Background())

	want := []string{pipeline.EventHistoryChanged, pipeline.EventClipboardChanged}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, names)
	}
}

// TestParseRules tests the parseRules helper.
func TestParseRules(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "empty array", input: "[]", expected: 0},
		{name: "one rule", input: `[{"pattern":"x","field":"text","action":"ignore"}]`, expected: 1},
		{name: "comments and trailing comma", input: "[\n// note\n{\"pattern\":\"x\",\"field\":\"app\",\"action\":\"ignore\"},\n]", expected: 1},
		{name: "null", input: "null", expected: 0},
		{name: "object instead of array", input: `{"pattern":"x"}`, expectError: true},
		{name: "garbage", input: "not json", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseRules(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result == nil || len(result) != tt.expected {
				t.Errorf("expected %d rules, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"clipnest"}, expected: false},
		{name: "list command", args: []string{"clipnest", "list"}, expected: true},
		{name: "watch command", args: []string{"clipnest", "watch"}, expected: true},
		{name: "serve command", args: []string{"clipnest", "serve"}, expected: true},
		{name: "help flag", args: []string{"clipnest", "--help"}, expected: true},
		{name: "version flag", args: []string{"clipnest", "--version"}, expected: true},
		{name: "short help flag", args: []string{"clipnest", "-h"}, expected: true},
		{name: "short version flag", args: []string{"clipnest", "-v"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"clipnest", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"clipnest"}, expected: false},
		{name: "help flag", args: []string{"clipnest", "--help"}, expected: true},
		{name: "short help flag", args: []string{"clipnest", "-h"}, expected: true},
		{name: "version flag", args: []string{"clipnest", "--version"}, expected: true},
		{name: "short version flag", args: []string{"clipnest", "-v"}, expected: true},
		{name: "help subcommand", args: []string{"clipnest", "help"}, expected: true},
		{name: "list command is not help", args: []string{"clipnest", "list"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestBaseDirectory tests the CLIPNEST_HOME override.
func TestBaseDirectory(t *testing.T) {
	t.Setenv("CLIPNEST_HOME", "/tmp/clipnest-test")
	dir, err := baseDirectory()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/tmp/clipnest-test" {
		t.Errorf("expected override, got %s", dir)
	}
}

// TestReadStdinWithLimit tests the readStdin function respects size limits.
func TestReadStdinWithLimit(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		content := "small content"
		withStdin(t, content, func() {
			result, err := readStdin(1000)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if result != content {
				t.Errorf("expected %q, got %q", content, result)
			}
		})
	})

	t.Run("exceeds limit", func(t *testing.T) {
		withStdin(t, strings.Repeat("x", 100), func() {
			// Limit is 50 bytes, content is 100
			if _, err := readStdin(50); err == nil {
				t.Error("expected error for content exceeding limit, got nil")
			}
		})
	})
}
