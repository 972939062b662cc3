// Package ops implements the command surface shared by the CLI and the MCP
// server. Every operation takes the running pipeline, validates its input
// and returns a JSON-ready output struct or a *errors.ClipError.
package ops

import (
	"strings"

	"github.com/hpungsan/clipnest/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// requireID trims id and rejects empty values.
func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}
