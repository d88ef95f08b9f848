// Package staging holds the transient selection state between picking a
// food from search results and committing it into the meal board.
package staging

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nutriboard/internal/apperr"
	"github.com/starford/nutriboard/internal/models"
	"github.com/starford/nutriboard/internal/nutrition"
)

// Staging defaults: unit grams, a full reference portion.
const (
	defaultQuantity = 100
	minQuantity     = 1
)

// Committer is the board surface a commit delegates to.
type Committer interface {
	AddItem(ctx context.Context, slot models.MealType, item models.MealItem) (*models.Meal, error)
}

// Selection is the staging state machine: Closed → Open → Closed. While
// Open it carries the active food, chosen unit, quantity, and target slot.
// Not safe for concurrent use; it belongs to one interactive session.
type Selection struct {
	board Committer

	open     bool
	food     models.FoodReference
	unit     models.MeasureUnit
	quantity float64
	target   models.MealType

	lastUsed    models.MealType
	hasLastUsed bool
}

// NewSelection returns a closed selection bound to the given board.
func NewSelection(board Committer) *Selection {
	return &Selection{board: board}
}

// SetLastUsed seeds the remembered slot (e.g. restored from history) that
// OpenFor falls back to when no preset is given.
func (s *Selection) SetLastUsed(slot models.MealType) {
	s.lastUsed = slot
	s.hasLastUsed = true
}

// OpenFor stages the food with default unit and quantity. The target slot
// is preset when given, otherwise the last-used slot, otherwise breakfast.
func (s *Selection) OpenFor(food models.FoodReference, preset *models.MealType) {
	s.open = true
	s.food = food
	s.unit = models.UnitGram
	s.quantity = defaultQuantity
	switch {
	case preset != nil:
		s.target = *preset
	case s.hasLastUsed:
		s.target = s.lastUsed
	default:
		s.target = models.MealBreakfast
	}
}

// IsOpen reports whether a selection is staged.
func (s *Selection) IsOpen() bool { return s.open }

// ChangeUnit updates the staged unit.
func (s *Selection) ChangeUnit(unit models.MeasureUnit) error {
	if !s.open {
		return apperr.ErrNotStaged
	}
	s.unit = unit
	return nil
}

// ChangeQuantity updates the staged quantity, clamped to a minimum of 1.
func (s *Selection) ChangeQuantity(quantity float64) error {
	if !s.open {
		return apperr.ErrNotStaged
	}
	if quantity < minQuantity {
		quantity = minQuantity
	}
	s.quantity = quantity
	return nil
}

// ChangeTarget retargets the staged item at another meal slot.
func (s *Selection) ChangeTarget(slot models.MealType) error {
	if !s.open {
		return apperr.ErrNotStaged
	}
	s.target = slot
	return nil
}

// Staged returns the current staged values for display.
func (s *Selection) Staged() (food models.FoodReference, unit models.MeasureUnit, quantity float64, target models.MealType) {
	return s.food, s.unit, s.quantity, s.target
}

// Preview computes the macro badge values for the staged portion.
func (s *Selection) Preview() (nutrition.Facts, error) {
	if !s.open {
		return nutrition.Facts{}, apperr.ErrNotStaged
	}
	return nutrition.ForQuantity(s.food, s.quantity)
}

// Commit builds a meal item from the staged values and hands it to the
// board. On success the selection closes and the target slot is remembered
// for the next OpenFor; on failure it stays open with the staged values
// intact so the user can retry.
func (s *Selection) Commit(ctx context.Context) (*models.Meal, error) {
	if !s.open {
		return nil, apperr.ErrNotStaged
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	item := models.MealItem{Food: s.food, Quantity: s.quantity, Unit: s.unit}
	meal, err := s.board.AddItem(ctx, s.target, item)
	if err != nil {
		return nil, err
	}

	s.lastUsed = s.target
	s.hasLastUsed = true
	s.reset()
	return meal, nil
}

// Cancel discards the staged state unconditionally.
func (s *Selection) Cancel() {
	s.reset()
}

func (s *Selection) reset() {
	s.open = false
	s.food = models.FoodReference{}
	s.unit = ""
	s.quantity = 0
	s.target = ""
}

func (s *Selection) validate() error {
	if s.target == "" {
		return apperr.ErrNoTargetSlot
	}
	slots := make([]any, 0, len(models.MealTypes()))
	for _, t := range models.MealTypes() {
		slots = append(slots, string(t))
	}
	units := make([]any, 0, len(models.MeasureUnits()))
	for _, u := range models.MeasureUnits() {
		units = append(units, string(u))
	}
	return validation.Errors{
		"quantity": validation.Validate(s.quantity, validation.Required, validation.Min(float64(minQuantity))),
		"unit":     validation.Validate(string(s.unit), validation.Required, validation.In(units...)),
		"meal":     validation.Validate(string(s.target), validation.Required, validation.In(slots...)),
	}.Filter()
}
