// Package board holds the in-memory meal board for the tracked day and
// keeps it consistent with the backend.
//
// Every remote mutation is a two-phase operation: stage the change
// locally, push the meal's full item list (the backend contract is
// whole-meal replace), and either commit the server's view or roll the
// slot back to its pre-call snapshot. A slot with zero items is absent
// from the board, never an empty aggregate.
package board

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nutriboard/internal/apperr"
	"github.com/starford/nutriboard/internal/models"
	"github.com/starford/nutriboard/internal/nutrition"
)

// Remote is the backend surface the board depends on.
type Remote interface {
	MealsBetween(ctx context.Context, start, end time.Time) ([]models.Meal, error)
	CreateMeal(ctx context.Context, m *models.Meal) (*models.Meal, error)
	UpdateMeal(ctx context.Context, m *models.Meal) (*models.Meal, error)
	DeleteMeal(ctx context.Context, id uuid.UUID) error
}

// Board maps each meal slot to at most one meal for the current day.
//
// Operations issued against the same slot are serialized: a second
// mutating call while one is in flight fails with apperr.ErrSlotBusy.
// Nothing guards against other processes editing the same day; the
// whole-meal-replace contract makes that a lost-update hazard by design.
type Board struct {
	remote Remote
	logger *slog.Logger

	mu       sync.Mutex
	slots    map[models.MealType]*models.Meal
	baseline map[models.MealType]*models.Meal
	inflight map[models.MealType]bool
}

// New creates an empty board backed by the given remote.
func New(remote Remote, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		remote:   remote,
		logger:   logger,
		slots:    make(map[models.MealType]*models.Meal),
		baseline: make(map[models.MealType]*models.Meal),
		inflight: make(map[models.MealType]bool),
	}
}

// Load replaces the entire board with the backend's records for the day
// range. Slots without a record stay absent. When the backend holds more
// than one record for a slot, the one with the latest timestamp wins and
// the shadowed records are logged.
func (b *Board) Load(ctx context.Context, start, end time.Time) error {
	meals, err := b.remote.MealsBetween(ctx, start, end)
	if err != nil {
		return err
	}

	slots := make(map[models.MealType]*models.Meal, len(meals))
	for i := range meals {
		m := &meals[i]
		if len(m.Items) == 0 {
			continue
		}
		if existing, ok := slots[m.Type]; ok {
			keep, drop := m, existing
			if existing.LoggedAt.After(m.LoggedAt) {
				keep, drop = existing, m
			}
			b.logger.Warn("duplicate meal records for slot; keeping latest",
				slog.String("slot", string(m.Type)),
				slog.String("kept", keep.RemoteID.String()),
				slog.String("shadowed", drop.RemoteID.String()))
			slots[m.Type] = keep
			continue
		}
		slots[m.Type] = m
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = make(map[models.MealType]*models.Meal, len(slots))
	b.baseline = make(map[models.MealType]*models.Meal, len(slots))
	for t, m := range slots {
		b.slots[t] = m.Clone()
		b.baseline[t] = m.Clone()
	}
	return nil
}

// Meal returns a copy of the slot's meal, if present.
func (b *Board) Meal(slot models.MealType) (*models.Meal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.slots[slot]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Meals returns copies of all present meals in board display order.
func (b *Board) Meals() []*models.Meal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*models.Meal, 0, len(b.slots))
	for _, t := range models.MealTypes() {
		if m, ok := b.slots[t]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Subtotal computes the slot's nutrient subtotal from unrounded item
// contributions. The zero Facts value is returned for an absent slot.
func (b *Board) Subtotal(slot models.MealType) nutrition.Facts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return nutrition.MealFacts(b.slots[slot])
}

// Dirty reports whether the slot has local edits the backend has not
// confirmed yet.
func (b *Board) Dirty(slot models.MealType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !mealsEqual(b.slots[slot], b.baseline[slot])
}

// AddItem appends the item to the slot's meal, creating the meal when the
// slot is empty, and persists the change. On a create the backend assigns
// the remote id; on an extend the full item list is pushed. Either way the
// slot is rolled back to its snapshot if the request fails. The persisted
// meal is returned on success.
func (b *Board) AddItem(ctx context.Context, slot models.MealType, item models.MealItem) (*models.Meal, error) {
	if item.Quantity <= 0 {
		return nil, apperr.ErrInvalidQuantity
	}

	b.mu.Lock()
	if b.inflight[slot] {
		b.mu.Unlock()
		return nil, apperr.ErrSlotBusy
	}
	b.inflight[slot] = true

	existing := b.slots[slot]
	var staged *models.Meal
	if existing == nil {
		staged = &models.Meal{Type: slot, LoggedAt: time.Now().UTC(), Items: []models.MealItem{item}}
	} else {
		staged = existing.Clone()
		staged.Items = append(staged.Items, item)
	}
	b.mu.Unlock()

	var persisted *models.Meal
	var err error
	if staged.Persisted() {
		persisted, err = b.remote.UpdateMeal(ctx, staged)
	} else {
		persisted, err = b.remote.CreateMeal(ctx, staged)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, slot)
	if err != nil {
		// Slot state was never touched, so there is nothing to restore.
		return nil, fmt.Errorf("add item to %s: %w", slot, err)
	}
	b.slots[slot] = persisted.Clone()
	b.baseline[slot] = persisted.Clone()
	return persisted.Clone(), nil
}

// UpdateQuantity mutates an item's quantity locally, with no network call.
// The new quantity is clamped to the unit's step floor (10 for grams, 1
// otherwise). Push the change with SaveMeal.
func (b *Board) UpdateQuantity(slot models.MealType, itemIndex int, quantity float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.slots[slot]
	if !ok {
		return apperr.ErrNotFound
	}
	if itemIndex < 0 || itemIndex >= len(m.Items) {
		return apperr.ErrNotFound
	}
	floor := m.Items[itemIndex].Unit.Step()
	if quantity < floor {
		quantity = floor
	}
	m.Items[itemIndex].Quantity = quantity
	return nil
}

// RemoveItem removes one item and pushes the shortened list. Removing the
// last item is refused with apperr.ErrLastItem: the caller must confirm
// and call RemoveMeal instead, so the board never holds an empty meal.
func (b *Board) RemoveItem(ctx context.Context, slot models.MealType, itemIndex int) error {
	b.mu.Lock()
	if b.inflight[slot] {
		b.mu.Unlock()
		return apperr.ErrSlotBusy
	}
	m, ok := b.slots[slot]
	if !ok || itemIndex < 0 || itemIndex >= len(m.Items) {
		b.mu.Unlock()
		return apperr.ErrNotFound
	}
	if len(m.Items) == 1 {
		b.mu.Unlock()
		return apperr.ErrLastItem
	}

	b.inflight[slot] = true
	snapshot := m.Clone()
	staged := m.Clone()
	staged.Items = append(staged.Items[:itemIndex], staged.Items[itemIndex+1:]...)
	b.slots[slot] = staged.Clone()
	b.mu.Unlock()

	persisted, err := b.remote.UpdateMeal(ctx, staged)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, slot)
	if err != nil {
		b.slots[slot] = snapshot
		return fmt.Errorf("remove item from %s: %w", slot, err)
	}
	b.slots[slot] = persisted.Clone()
	b.baseline[slot] = persisted.Clone()
	return nil
}

// SaveMeal pushes the slot's current item list as a full replace. On
// success the pushed state becomes the new confirmed baseline; on failure
// the local list is left exactly as it was before the call.
func (b *Board) SaveMeal(ctx context.Context, slot models.MealType) (*models.Meal, error) {
	b.mu.Lock()
	if b.inflight[slot] {
		b.mu.Unlock()
		return nil, apperr.ErrSlotBusy
	}
	m, ok := b.slots[slot]
	if !ok {
		b.mu.Unlock()
		return nil, apperr.ErrNotFound
	}
	b.inflight[slot] = true
	staged := m.Clone()
	b.mu.Unlock()

	var persisted *models.Meal
	var err error
	if staged.Persisted() {
		persisted, err = b.remote.UpdateMeal(ctx, staged)
	} else {
		persisted, err = b.remote.CreateMeal(ctx, staged)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, slot)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", slot, err)
	}
	b.slots[slot] = persisted.Clone()
	b.baseline[slot] = persisted.Clone()
	return persisted.Clone(), nil
}

// RemoveMeal deletes the whole meal from the backend and clears the slot.
// A meal that was never persisted is cleared locally without a request.
func (b *Board) RemoveMeal(ctx context.Context, slot models.MealType) error {
	b.mu.Lock()
	if b.inflight[slot] {
		b.mu.Unlock()
		return apperr.ErrSlotBusy
	}
	m, ok := b.slots[slot]
	if !ok {
		b.mu.Unlock()
		return apperr.ErrNotFound
	}
	if !m.Persisted() {
		delete(b.slots, slot)
		delete(b.baseline, slot)
		b.mu.Unlock()
		return nil
	}
	b.inflight[slot] = true
	remoteID := m.RemoteID
	b.mu.Unlock()

	err := b.remote.DeleteMeal(ctx, remoteID)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, slot)
	if err != nil {
		return fmt.Errorf("remove %s: %w", slot, err)
	}
	delete(b.slots, slot)
	delete(b.baseline, slot)
	return nil
}

// CancelEdit discards local edits, restoring the slot to its last
// confirmed state. A slot with no confirmed baseline is cleared.
func (b *Board) CancelEdit(slot models.MealType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	base, ok := b.baseline[slot]
	if !ok {
		delete(b.slots, slot)
		return
	}
	b.slots[slot] = base.Clone()
}

// IsLastItem reports whether removing the given item would empty the meal.
func (b *Board) IsLastItem(slot models.MealType, itemIndex int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.slots[slot]
	if !ok || itemIndex < 0 || itemIndex >= len(m.Items) {
		return false, apperr.ErrNotFound
	}
	return len(m.Items) == 1, nil
}

func mealsEqual(a, c *models.Meal) bool {
	if a == nil || c == nil {
		return a == nil && c == nil
	}
	if a.Type != c.Type || a.RemoteID != c.RemoteID || len(a.Items) != len(c.Items) {
		return false
	}
	for i := range a.Items {
		x, y := a.Items[i], c.Items[i]
		if x.Food.ID != y.Food.ID || x.Quantity != y.Quantity || x.Unit != y.Unit {
			return false
		}
	}
	return true
}
