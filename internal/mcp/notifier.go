package mcp

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/server"
)

// NotificationPrefix namespaces pipeline events sent to MCP clients.
const NotificationPrefix = "notifications/clipnest/"

// Notifier forwards pipeline events to every connected MCP client. Events
// emitted before Attach are dropped.
type Notifier struct {
	srv    atomic.Pointer[server.MCPServer]
	logger *slog.Logger
}

// NewNotifier returns a detached Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Attach starts delivering events to s.
func (n *Notifier) Attach(s *server.MCPServer) {
	n.srv.Store(s)
}

// Emit implements pipeline.Emitter.
func (n *Notifier) Emit(name string, payload any) {
	s := n.srv.Load()
	if s == nil {
		return
	}
	params, err := toParams(payload)
	if err != nil {
		n.logger.Warn("failed to encode notification", "event", name, "error", err)
		return
	}
	s.SendNotificationToAllClients(NotificationPrefix+name, params)
}

// toParams converts a payload struct into notification params.
func toParams(payload any) (map[string]any, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(b, &params); err != nil {
		return nil, err
	}
	return params, nil
}
