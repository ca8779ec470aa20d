// Package board owns the authoritative in-memory collection behind the
// kanban view and applies status transitions optimistically against the
// store.
package board

import (
	"context"
	"fmt"
	"sync"

	"cadence/api/internal/rbac"
	"cadence/api/internal/store"
	"cadence/api/internal/validate"
)

// Gateway is the slice of the store the controller drives.
type Gateway interface {
	ListContents(ctx context.Context, filter store.ContentFilter, sortKey string, ascending bool) ([]store.ContentItem, error)
	UpdateContent(ctx context.Context, contentID string, patch store.ContentPatch, actorEmail string) (store.ContentItem, error)
}

// Controller holds the collection and serializes mutations to it. Store
// calls run outside the lock so a slow update never blocks reads; a failed
// update restores the snapshot taken when it started.
type Controller struct {
	gateway Gateway
	onSaved func(store.ContentItem)

	mu       sync.Mutex
	items    []store.ContentItem
	inFlight map[string]bool
}

func NewController(gateway Gateway) *Controller {
	return &Controller{
		gateway:  gateway,
		inFlight: map[string]bool{},
	}
}

// SetOnSaved registers a callback invoked after every successful Save with
// the server-returned row. Transitions do not trigger it.
func (c *Controller) SetOnSaved(fn func(store.ContentItem)) {
	c.onSaved = fn
}

// Reload replaces the collection from the store, sorted by deadline
// ascending.
func (c *Controller) Reload(ctx context.Context) error {
	items, err := c.gateway.ListContents(ctx, store.ContentFilter{}, "deadline", true)
	if err != nil {
		return fmt.Errorf("reload board: %w", err)
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Items returns a copy of the collection.
func (c *Controller) Items() []store.ContentItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.ContentItem, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the item with the given ID from the collection.
func (c *Controller) Get(itemID string) (store.ContentItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if item.ID == itemID {
			return item, true
		}
	}
	return store.ContentItem{}, false
}

// ByStatus groups the collection into the three board columns, preserving
// the collection's deadline order within each.
func (c *Controller) ByStatus() map[string][]store.ContentItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	columns := map[string][]store.ContentItem{
		store.StatusNotStarted: {},
		store.StatusInProgress: {},
		store.StatusComplete:   {},
	}
	for _, item := range c.items {
		columns[item.Status] = append(columns[item.Status], item)
	}
	return columns
}

// Adopt inserts or replaces a single item in the collection, used when a
// row was created or fetched outside the controller.
func (c *Controller) Adopt(item store.ContentItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adoptLocked(item)
}

func (c *Controller) adoptLocked(item store.ContentItem) {
	for i := range c.items {
		if c.items[i].ID == item.ID {
			c.items[i] = item
			return
		}
	}
	c.items = append(c.items, item)
}

// Transition moves an item to the target status. The returned bool reports
// whether a store write happened: no-ops and moves on items already in
// flight are dropped, not queued. Moving to Complete without a valid final
// drive link fails before any optimistic change with NeedsFinalLinkError.
// On store failure the whole collection is restored to its pre-transition
// snapshot, including optimistic changes other transitions applied in the
// meantime.
func (c *Controller) Transition(ctx context.Context, itemID, target, actorEmail string) (store.ContentItem, bool, error) {
	c.mu.Lock()

	idx := -1
	for i := range c.items {
		if c.items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.mu.Unlock()
		return store.ContentItem{}, false, ErrUnknownItem
	}
	item := c.items[idx]

	if item.Status == target {
		c.mu.Unlock()
		return item, false, nil
	}
	if c.inFlight[itemID] {
		c.mu.Unlock()
		return item, false, nil
	}
	if target == store.StatusComplete && !validate.IsDeliverableLink(item.FinalDriveLink) {
		c.mu.Unlock()
		return item, false, &NeedsFinalLinkError{Item: item}
	}

	snapshot := make([]store.ContentItem, len(c.items))
	copy(snapshot, c.items)

	c.items[idx].Status = target
	c.inFlight[itemID] = true
	c.mu.Unlock()

	patch := store.ContentPatch{Status: &target}
	updated, err := c.gateway.UpdateContent(ctx, itemID, patch, actorEmail)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, itemID)

	if err != nil {
		c.items = snapshot
		return store.ContentItem{}, false, fmt.Errorf("transition %s to %s: %w", itemID, target, err)
	}

	c.adoptLocked(updated)
	return updated, true, nil
}

// Save applies a field-level patch from the edit drawer. The patch is
// validated and gated before any store call: completing an item requires a
// valid final drive link, only the PIC or an admin may edit, and only an
// admin may reassign the PIC.
func (c *Controller) Save(ctx context.Context, itemID string, patch store.ContentPatch, actorEmail string, role rbac.Role) (store.ContentItem, error) {
	item, ok := c.Get(itemID)
	if !ok {
		return store.ContentItem{}, ErrUnknownItem
	}

	if !rbac.CanEditItem(role, actorEmail, item.PICEmail) {
		return store.ContentItem{}, ErrForbidden
	}
	if patch.PICEmail != nil && *patch.PICEmail != item.PICEmail && !rbac.CanAssignPIC(role) {
		return store.ContentItem{}, ErrForbidden
	}

	status := item.Status
	if patch.Status != nil {
		status = *patch.Status
	}

	if status == store.StatusComplete {
		link := item.FinalDriveLink
		if patch.FinalDriveLink != nil {
			link = *patch.FinalDriveLink
		}
		link = validate.NormalizeURL(link)
		if !validate.IsDeliverableLink(link) {
			return store.ContentItem{}, &ValidationError{
				Field:   "final_drive_link",
				Message: "a valid drive link is required to mark content complete",
			}
		}
		patch.FinalDriveLink = &link
	} else if patch.FinalDriveLink != nil {
		link := validate.NormalizeURL(*patch.FinalDriveLink)
		patch.FinalDriveLink = &link
	}

	if patch.IsZero() {
		return item, nil
	}

	updated, err := c.gateway.UpdateContent(ctx, itemID, patch, actorEmail)
	if err != nil {
		return store.ContentItem{}, fmt.Errorf("save %s: %w", itemID, err)
	}

	c.Adopt(updated)
	if c.onSaved != nil {
		c.onSaved(updated)
	}
	return updated, nil
}
