package board

import (
	"errors"
	"fmt"

	"cadence/api/internal/store"
)

var (
	ErrUnknownItem = errors.New("unknown content item")
	ErrForbidden   = errors.New("not allowed to edit this item")
)

// NeedsFinalLinkError rejects a move to Complete before any optimistic
// change or store call. It carries the item so the caller can open it for
// editing.
type NeedsFinalLinkError struct {
	Item store.ContentItem
}

func (e *NeedsFinalLinkError) Error() string {
	return fmt.Sprintf("content %s needs a valid final drive link before completion", e.Item.ID)
}

// ValidationError is a pre-flight save rejection. Nothing reaches the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
