package mcp

import "github.com/mark3labs/mcp-go/mcp"

var listToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List clipboard history entries, pinned first then newest first."),
	mcp.WithNumber("limit", mcp.Description("Max entries to return (default 50, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Entries to skip")),
	mcp.WithString("type", mcp.Description("Filter by capture type"), mcp.Enum("text", "link", "code")),
	mcp.WithString("tag", mcp.Description("Filter by exact tag")),
	mcp.WithString("query", mcp.Description("Case- and whitespace-insensitive substring match on the text")),
	mcp.WithBoolean("pinned_only", mcp.Description("Only return pinned entries")),
)

var pinToolDef = mcp.NewTool("history_pin",
	mcp.WithDescription("Pin or unpin a history entry. Pinned entries are never evicted."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry ID")),
	mcp.WithBoolean("pinned", mcp.Description("true to pin (default), false to unpin")),
)

var deleteToolDef = mcp.NewTool("history_delete",
	mcp.WithDescription("Delete a history entry."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry ID")),
)

var clearToolDef = mcp.NewTool("history_clear",
	mcp.WithDescription("Remove all history entries."),
	mcp.WithBoolean("keep_pinned", mcp.Description("Keep pinned entries")),
)

var restoreToolDef = mcp.NewTool("history_restore",
	mcp.WithDescription("Copy an entry (or literal text) back to the system clipboard without re-capturing it."),
	mcp.WithString("id", mcp.Description("Entry ID to restore")),
	mcp.WithString("text", mcp.Description("Literal text to restore instead of an entry")),
)

var exportToolDef = mcp.NewTool("history_export",
	mcp.WithDescription("Export the history to a file."),
	mcp.WithString("path", mcp.Description("Destination path (default: ~/.clipnest/exports/history-<timestamp>.<ext>)")),
	mcp.WithString("format", mcp.Description("File format (default jsonl)"), mcp.Enum("jsonl", "markdown", "html")),
	mcp.WithBoolean("pinned_only", mcp.Description("Only export pinned entries")),
)

var importToolDef = mcp.NewTool("history_import",
	mcp.WithDescription("Merge entries from a JSONL export into the history. Existing entries win on conflict."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to a .jsonl export")),
)

var settingsGetToolDef = mcp.NewTool("settings_get",
	mcp.WithDescription("Show the live capture settings and rules."),
)

var settingsUpdateToolDef = mcp.NewTool("settings_update",
	mcp.WithDescription("Change capture settings. Omitted fields are unchanged; an invalid value rejects the whole update."),
	mcp.WithNumber("history_limit", mcp.Description("Max unpinned entries (> 0)")),
	mcp.WithNumber("min_text_length", mcp.Description("Drop plain text shorter than this")),
	mcp.WithNumber("dedup_window_minutes", mcp.Description("Window in which a repeated copy replaces the earlier one")),
	mcp.WithBoolean("monitoring_enabled", mcp.Description("Pause or resume clipboard capture")),
	mcp.WithBoolean("persistence_enabled", mcp.Description("Save history to disk after each change")),
)

var rulesSetToolDef = mcp.NewTool("rules_set",
	mcp.WithDescription("Replace the capture rules. Rules run in order; patterns that fail to compile are kept but skipped."),
	mcp.WithArray("rules",
		mcp.Required(),
		mcp.Description("Ordered rule list"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{"type": "string"},
				"field":   map[string]any{"type": "string", "enum": []string{"text", "url", "app", "type"}},
				"action":  map[string]any{"type": "string", "enum": []string{"tag", "ignore", "merge"}},
				"tag":     map[string]any{"type": "string"},
			},
			"required": []string{"pattern", "field", "action"},
		}),
	),
)
