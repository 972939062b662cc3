package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/clipnest/internal/config"
	"github.com/hpungsan/clipnest/internal/pipeline"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"history_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"history_pin": {
		def:     pinToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePin },
	},
	"history_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"history_clear": {
		def:     clearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClear },
	},
	"history_restore": {
		def:     restoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRestore },
	},
	"history_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"history_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"settings_get": {
		def:     settingsGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettingsGet },
	},
	"settings_update": {
		def:     settingsUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettingsUpdate },
	},
	"rules_set": {
		def:     rulesSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRulesSet },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with clipnest tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
// baseDir is where settings changes and default exports are written.
func NewServer(p *pipeline.Pipeline, cfg *config.Config, baseDir, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"clipnest",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(p, baseDir)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves s over stdio until stdin closes.
func Run(s *server.MCPServer, logger *slog.Logger) error {
	logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s)
}
