package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/ops"
	"github.com/hpungsan/clipnest/internal/pipeline"
	"github.com/hpungsan/clipnest/internal/rules"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	p       *pipeline.Pipeline
	baseDir string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(p *pipeline.Pipeline, baseDir string) *Handlers {
	return &Handlers{p: p, baseDir: baseDir}
}

// Request types for each tool

// ListRequest represents the arguments for history_list.
type ListRequest struct {
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Type       string `json:"type,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Query      string `json:"query,omitempty"`
	PinnedOnly bool   `json:"pinned_only,omitempty"`
}

// PinRequest represents the arguments for history_pin.
type PinRequest struct {
	ID     string `json:"id"`
	Pinned *bool  `json:"pinned,omitempty"`
}

// IDRequest represents the arguments for tools addressing one entry.
type IDRequest struct {
	ID string `json:"id"`
}

// ClearRequest represents the arguments for history_clear.
type ClearRequest struct {
	KeepPinned bool `json:"keep_pinned,omitempty"`
}

// RestoreRequest represents the arguments for history_restore.
type RestoreRequest struct {
	ID   string  `json:"id,omitempty"`
	Text *string `json:"text,omitempty"`
}

// ExportRequest represents the arguments for history_export.
type ExportRequest struct {
	Path       string `json:"path,omitempty"`
	Format     string `json:"format,omitempty"`
	PinnedOnly bool   `json:"pinned_only,omitempty"`
}

// ImportRequest represents the arguments for history_import.
type ImportRequest struct {
	Path string `json:"path"`
}

// SettingsUpdateRequest represents the arguments for settings_update.
type SettingsUpdateRequest struct {
	HistoryLimit       *int  `json:"history_limit,omitempty"`
	MinTextLength      *int  `json:"min_text_length,omitempty"`
	DedupWindowMinutes *int  `json:"dedup_window_minutes,omitempty"`
	MonitoringEnabled  *bool `json:"monitoring_enabled,omitempty"`
	PersistenceEnabled *bool `json:"persistence_enabled,omitempty"`
}

// RulesSetRequest represents the arguments for rules_set.
type RulesSetRequest struct {
	Rules []rules.Rule `json:"rules"`
}

// Handler implementations

// HandleList handles the history_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(h.p, ops.ListInput{
		Limit:      input.Limit,
		Offset:     input.Offset,
		Type:       input.Type,
		Tag:        input.Tag,
		Query:      input.Query,
		PinnedOnly: input.PinnedOnly,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePin handles the history_pin tool call.
func (h *Handlers) HandlePin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PinRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	pinned := true
	if input.Pinned != nil {
		pinned = *input.Pinned
	}

	result, err := ops.Pin(ctx, h.p, ops.PinInput{ID: input.ID, Pinned: pinned})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the history_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.p, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleClear handles the history_clear tool call.
func (h *Handlers) HandleClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Clear(ctx, h.p, ops.ClearInput{KeepPinned: input.KeepPinned})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRestore handles the history_restore tool call.
func (h *Handlers) HandleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RestoreRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Restore(ctx, h.p, ops.RestoreInput{ID: input.ID, Text: input.Text})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the history_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.p, h.baseDir, ops.ExportInput{
		Path:       input.Path,
		Format:     ops.ExportFormat(input.Format),
		PinnedOnly: input.PinnedOnly,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the history_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.p, ops.ImportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSettingsGet handles the settings_get tool call.
func (h *Handlers) HandleSettingsGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(ops.GetSettings(h.p))
}

// HandleSettingsUpdate handles the settings_update tool call.
func (h *Handlers) HandleSettingsUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdateSettings(ctx, h.p, h.baseDir, ops.UpdateSettingsInput{
		HistoryLimit:       input.HistoryLimit,
		MinTextLength:      input.MinTextLength,
		DedupWindowMinutes: input.DedupWindowMinutes,
		MonitoringEnabled:  input.MonitoringEnabled,
		PersistenceEnabled: input.PersistenceEnabled,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRulesSet handles the rules_set tool call.
func (h *Handlers) HandleRulesSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RulesSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Rules == nil {
		return errorResult(errors.NewInvalidRequest("rules is required")), nil
	}

	result, err := ops.SetRules(h.p, h.baseDir, ops.SetRulesInput{Rules: input.Rules})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var clipErr *errors.ClipError
	if stderrors.As(err, &clipErr) {
		msg := clipErr.Message
		// Keep wrapping context such as "rules[2]: ".
		if err != error(clipErr) {
			msg = strings.Replace(err.Error(), clipErr.Error(), clipErr.Message, 1)
		}
		errorObj := map[string]any{
			"code":    clipErr.Code,
			"message": msg,
			"status":  clipErr.Status,
		}
		if clipErr.Code != errors.ErrInternal && clipErr.Details != nil {
			errorObj["details"] = clipErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
