package ops

import (
	"context"

	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/pipeline"
)

// PinInput contains parameters for the Pin operation.
type PinInput struct {
	ID     string
	Pinned bool
}

// PinOutput contains the result of the Pin operation.
type PinOutput struct {
	ID     string `json:"id"`
	Pinned bool   `json:"pinned"`
}

// Pin pins or unpins an entry.
func Pin(ctx context.Context, p *pipeline.Pipeline, input PinInput) (*PinOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}
	if !p.Store().SetPinned(id, input.Pinned) {
		return nil, errors.NewNotFound(id)
	}
	p.Changed(ctx)
	return &PinOutput{ID: id, Pinned: input.Pinned}, nil
}

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete removes an entry. Pinned entries can be deleted too.
func Delete(ctx context.Context, p *pipeline.Pipeline, input DeleteInput) (*DeleteOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}
	if !p.Store().Delete(id) {
		return nil, errors.NewNotFound(id)
	}
	p.Changed(ctx)
	return &DeleteOutput{Deleted: true, ID: id}, nil
}

// ClearInput contains parameters for the Clear operation.
type ClearInput struct {
	KeepPinned bool
}

// ClearOutput contains the result of the Clear operation.
type ClearOutput struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// Clear removes all entries, or only unpinned ones when KeepPinned is set.
func Clear(ctx context.Context, p *pipeline.Pipeline, input ClearInput) (*ClearOutput, error) {
	removed := p.Store().Clear(input.KeepPinned)
	p.Changed(ctx)
	return &ClearOutput{Removed: removed, Remaining: p.Store().Len()}, nil
}

// RestoreInput contains parameters for the Restore operation.
// Exactly one of ID or Text must be set.
type RestoreInput struct {
	ID   string
	Text *string
}

// RestoreOutput contains the result of the Restore operation.
type RestoreOutput struct {
	Restored bool   `json:"restored"`
	ID       string `json:"id,omitempty"`
	Chars    int    `json:"chars"`
}

// Restore copies an entry (or raw text) back to the clipboard. The write is
// marked app-originated so it is not captured again.
func Restore(ctx context.Context, p *pipeline.Pipeline, input RestoreInput) (*RestoreOutput, error) {
	id := input.ID
	hasID := id != ""
	if hasID == (input.Text != nil) {
		return nil, errors.NewInvalidRequest("must specify exactly one of id or text")
	}

	var text string
	if hasID {
		e, ok := p.Store().Get(id)
		if !ok {
			return nil, errors.NewNotFound(id)
		}
		text = e.Text
	} else {
		text = *input.Text
		if text == "" {
			return nil, errors.NewInvalidRequest("text must not be empty")
		}
	}

	if err := p.Restore(ctx, text); err != nil {
		return nil, err
	}
	return &RestoreOutput{Restored: true, ID: id, Chars: len([]rune(text))}, nil
}
