package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/config"
	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/history"
	"github.com/hpungsan/clipnest/internal/logging"
	"github.com/hpungsan/clipnest/internal/pipeline"
)

type memClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *memClipboard) ReadText(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *memClipboard) ReadImage(context.Context) (*pipeline.Image, error) {
	return nil, fmt.Errorf("no image")
}

func (c *memClipboard) WriteText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

// testSetup creates a pipeline seeded with three entries and a temp base dir.
func testSetup(t *testing.T) (*pipeline.Pipeline, *memClipboard, string) {
	t.Helper()

	store, err := history.New(history.DefaultLimit, history.DefaultDedupWindow)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	clip := &memClipboard{}
	p, err := pipeline.New(pipeline.Options{
		Clipboard: clip,
		Store:     store,
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, text := range []string{"first entry", "https://github.com/a/b", "third entry"} {
		kind := capture.Classify(text)
		e := capture.Entry{
			ID:          fmt.Sprintf("e%d", i+1),
			Text:        text,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			CaptureType: kind,
			Tags:        capture.AutoTags(text),
			ContentHash: capture.Hash(text),
		}
		store.Insert(e)
	}

	return p, clip, t.TempDir()
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

type handlerCase struct {
	name      string
	args      map[string]any
	wantError bool
	errorCode string
}

func runHandlerCases(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), tests []handlerCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handler(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

func TestHandleList(t *testing.T) {
	p, _, dir := testSetup(t)
	h := NewHandlers(p, dir)

	result, err := h.HandleList(context.Background(), makeRequest(map[string]any{"limit": 2}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)

	items := output["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if id := items[0].(map[string]any)["id"]; id != "e3" {
		t.Errorf("first id = %v, want e3", id)
	}
	pagination := output["pagination"].(map[string]any)
	if pagination["has_more"] != true || pagination["total"] != float64(3) {
		t.Errorf("pagination = %v", pagination)
	}

	runHandlerCases(t, h.HandleList, []handlerCase{
		{name: "filter by type", args: map[string]any{"type": "link"}},
		{name: "filter by tag", args: map[string]any{"tag": "github"}},
		{name: "unknown type", args: map[string]any{"type": "image"}, wantError: true, errorCode: "INVALID_REQUEST"},
		{name: "wrong arg type", args: map[string]any{"limit": "ten"}, wantError: true, errorCode: "INVALID_REQUEST"},
	})
}

func TestHandlePin(t *testing.T) {
	p, _, dir := testSetup(t)
	h := NewHandlers(p, dir)

	runHandlerCases(t, h.HandlePin, []handlerCase{
		{name: "pin defaults to true", args: map[string]any{"id": "e1"}},
		{name: "missing id", args: map[string]any{}, wantError: true, errorCode: "INVALID_REQUEST"},
		{name: "unknown id", args: map[string]any{"id": "nope"}, wantError: true, errorCode: "NOT_FOUND"},
	})

	if e, _ := p.Store().Get("e1"); !e.Pinned {
		t.Error("e1 should be pinned")
	}

	runHandlerCases(t, h.HandlePin, []handlerCase{
		{name: "unpin", args: map[string]any{"id": "e1", "pinned": false}},
	})
	if e, _ := p.Store().Get("e1"); e.Pinned {
		t.Error("e1 should be unpinned")
	}
}

func TestHandleDelete(t *testing.T) {
	p, _, dir := testSetup(t)
	h := NewHandlers(p, dir)

	runHandlerCases(t, h.HandleDelete, []handlerCase{
		{name: "delete existing", args: map[string]any{"id": "e2"}},
		{name: "delete again", args: map[string]any{"id": "e2"}, wantError: true, errorCode: "NOT_FOUND"},
		{name: "missing id", args: map[string]any{}, wantError: true, errorCode: "INVALID_REQUEST"},
	})
	if p.Store().Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Store().Len())
	}
}

func TestHandleClear(t *testing.T) {
	p, _, dir := testSetup(t)
	h := NewHandlers(p, dir)
	p.Store().SetPinned("e1", true)

	result, err := h.HandleClear(context.Background(), makeRequest(map[string]any{"keep_pinned": true}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["removed"] != float64(2) || output["remaining"] != float64(1) {
		t.Errorf("output = %v", output)
	}
}

func TestHandleRestore(t *testing.T) {
	p, clip, dir := testSetup(t)
	h := NewHandlers(p, dir)

	runHandlerCases(t, h.HandleRestore, []handlerCase{
		{name: "restore by id", args: map[string]any{"id": "e1"}},
		{name: "neither id nor text", args: map[string]any{}, wantError: true, errorCode: "INVALID_REQUEST"},
		{name: "both", args: map[string]any{"id": "e1", "text": "x"}, wantError: true, errorCode: "INVALID_REQUEST"},
		{name: "unknown id", args: map[string]any{"id": "nope"}, wantError: true, errorCode: "NOT_FOUND"},
	})
	if clip.text != "first entry" {
		t.Errorf("clipboard = %q, want first entry", clip.text)
	}

	runHandlerCases(t, h.HandleRestore, []handlerCase{
		{name: "restore text", args: map[string]any{"text": "literal"}},
	})
	if clip.text != "literal" {
		t.Errorf("clipboard = %q, want literal", clip.text)
	}
}

func TestHandleExportImport(t *testing.T) {
	p, _, dir := testSetup(t)
	h := NewHandlers(p, dir)
	ctx := context.Background()

	exportPath := filepath.Join(dir, "export.jsonl")
	result, err := h.HandleExport(ctx, makeRequest(map[string]any{"path": exportPath}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["count"] != float64(3) {
		t.Errorf("count = %v, want 3", output["count"])
	}

	dst, _, dstDir := testSetup(t)
	dst.Store().Clear(false)
	hd := NewHandlers(dst, dstDir)
	result, err = hd.HandleImport(ctx, makeRequest(map[string]any{"path": exportPath}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output = parseOutput(t, result)
	if output["imported"] != float64(3) {
		t.Errorf("imported = %v, want 3", output["imported"])
	}

	runHandlerCases(t, h.HandleExport, []handlerCase{
		{name: "markdown default path", args: map[string]any{"format": "markdown"}},
		{name: "bad format", args: map[string]any{"format": "pdf"}, wantError: true, errorCode: "INVALID_REQUEST"},
	})
	runHandlerCases(t, h.HandleImport, []handlerCase{
		{name: "missing path", args: map[string]any{}, wantError: true, errorCode: "INVALID_REQUEST"},
		{name: "missing file", args: map[string]any{"path": filepath.Join(dir, "none.jsonl")}, wantError: true, errorCode: "FILE_NOT_FOUND"},
	})
}

func TestHandleSettings(t *testing.T) {
	p, _, dir := testSetup(t)
	h := NewHandlers(p, dir)
	ctx := context.Background()

	result, err := h.HandleSettingsGet(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["history_limit"] != float64(100) {
		t.Errorf("history_limit = %v, want 100", output["history_limit"])
	}

	runHandlerCases(t, h.HandleSettingsUpdate, []handlerCase{
		{name: "lower limit", args: map[string]any{"history_limit": 2, "monitoring_enabled": false}},
		{name: "zero limit", args: map[string]any{"history_limit": 0}, wantError: true, errorCode: "INVALID_CONFIG"},
		{name: "negative window", args: map[string]any{"dedup_window_minutes": -1}, wantError: true, errorCode: "INVALID_CONFIG"},
	})

	if p.Store().Limit() != 2 || p.Settings().Monitoring() {
		t.Errorf("limit = %d monitoring = %v", p.Store().Limit(), p.Settings().Monitoring())
	}
	if p.Store().Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Store().Len())
	}

	saved, err := config.Load(dir)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	if saved.HistoryLimit != 2 {
		t.Errorf("saved history_limit = %d, want 2", saved.HistoryLimit)
	}
}

func TestHandleRulesSet(t *testing.T) {
	p, _, dir := testSetup(t)
	h := NewHandlers(p, dir)
	ctx := context.Background()

	result, err := h.HandleRulesSet(ctx, makeRequest(map[string]any{
		"rules": []any{
			map[string]any{"pattern": `^https://github\.com`, "field": "url", "action": "tag", "tag": "github"},
			map[string]any{"pattern": "(bad", "field": "text", "action": "ignore"},
		},
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["count"] != float64(2) {
		t.Errorf("count = %v, want 2", output["count"])
	}
	if invalid := output["invalid"].([]any); len(invalid) != 1 {
		t.Errorf("invalid = %v, want one rule", invalid)
	}

	runHandlerCases(t, h.HandleRulesSet, []handlerCase{
		{name: "missing rules", args: map[string]any{}, wantError: true, errorCode: "INVALID_REQUEST"},
		{
			name:      "bad field",
			args:      map[string]any{"rules": []any{map[string]any{"pattern": "x", "field": "body", "action": "ignore"}}},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{name: "clear rules", args: map[string]any{"rules": []any{}}},
	})
	if n := len(p.Settings().Rules().Rules()); n != 0 {
		t.Errorf("rules = %d, want 0 after clear", n)
	}
}

func TestServerRegistration(t *testing.T) {
	p, _, dir := testSetup(t)
	cfg := config.DefaultConfig()

	s := NewServer(p, cfg, dir, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"history_list",
		"history_pin",
		"history_delete",
		"history_clear",
		"history_restore",
		"history_export",
		"history_import",
		"settings_get",
		"settings_update",
		"rules_set",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	p, _, dir := testSetup(t)
	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"history_clear", "history_delete", "history_delete"}

	s := NewServer(p, cfg, dir, "test")
	tools := s.ListTools()

	if len(tools) != len(toolRegistry)-2 {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry)-2)
	}
	for _, name := range []string{"history_clear", "history_delete"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	p, _, dir := testSetup(t)
	cfg := config.DefaultConfig()
	cfg.DisabledTools = AllToolNames()

	s := NewServer(p, cfg, dir, "test")
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"history_clear", "rules_set"}, 0},
		{"one unknown", []string{"history_clear", "fake_tool"}, 1},
		{"all unknown", []string{"foo", "bar", "baz"}, 3},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 10 {
		t.Errorf("AllToolNames() returned %d names, want 10", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	err := errors.NewInternal(fmt.Errorf("open /tmp/secret.db: permission denied"))
	err.Details = map[string]any{"path": "/tmp/secret.db"}
	r := errorResult(err)
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("rules[2]: %w", errors.NewInvalidRequest("unknown field"))

	errObj := errorObject(t, errorResult(wrapped))
	if errObj["code"] != string(errors.ErrInvalidRequest) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInvalidRequest)
	}
	if msg := errObj["message"].(string); msg != "rules[2]: unknown field" {
		t.Errorf("message = %q", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("abc")))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != "INTERNAL" || errObj["message"] != "an internal error occurred" {
		t.Errorf("errObj = %v", errObj)
	}
}

func TestNotifier_DetachedDropsEvents(t *testing.T) {
	n := NewNotifier(logging.Discard())
	// Must not panic without a server.
	n.Emit(pipeline.EventHistoryChanged, pipeline.HistoryChanged{Count: 1})
}

func TestToParams(t *testing.T) {
	params, err := toParams(pipeline.ClipboardChanged{Text: "hi", FromApp: true})
	if err != nil {
		t.Fatalf("toParams failed: %v", err)
	}
	if params["text"] != "hi" || params["from_app"] != true {
		t.Errorf("params = %v", params)
	}

	if _, err := toParams(func() {}); err == nil {
		t.Error("expected error for unencodable payload")
	}
}

// Helper functions

func errorObject(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return strings.TrimSpace(text.Text)
}
