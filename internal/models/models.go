// Package models defines the domain types for Nutriboard.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MealType is a named period a day's food intake is organized into.
// The values are the wire strings the NutriTrack backend expects.
type MealType string

const (
	MealBreakfast   MealType = "CAFE_MANHA"
	MealLunch       MealType = "ALMOCO"
	MealDinner      MealType = "JANTAR"
	MealSnack       MealType = "LANCHE"
	MealSupper      MealType = "CEIA"
	MealPostWorkout MealType = "POS_TREINO"
	MealOther       MealType = "OUTRO"
)

// MealTypes returns all meal slots in board display order.
func MealTypes() []MealType {
	return []MealType{
		MealBreakfast, MealLunch, MealDinner, MealSnack,
		MealSupper, MealPostWorkout, MealOther,
	}
}

var mealAliases = map[string]MealType{
	"breakfast":    MealBreakfast,
	"lunch":        MealLunch,
	"dinner":       MealDinner,
	"snack":        MealSnack,
	"supper":       MealSupper,
	"post-workout": MealPostWorkout,
	"other":        MealOther,
}

// ParseMealType resolves a wire value ("CAFE_MANHA") or an English alias
// ("breakfast") to a MealType.
func ParseMealType(s string) (MealType, error) {
	if t, ok := mealAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	candidate := MealType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range MealTypes() {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown meal type %q", s)
}

// Label returns the display title for the slot.
func (t MealType) Label() string {
	switch t {
	case MealBreakfast:
		return "Café da Manhã"
	case MealLunch:
		return "Almoço"
	case MealDinner:
		return "Jantar"
	case MealSnack:
		return "Lanche"
	case MealSupper:
		return "Ceia"
	case MealPostWorkout:
		return "Pós-Treino"
	case MealOther:
		return "Outro"
	}
	return string(t)
}

// MeasureUnit is the unit a meal item's quantity is expressed in. Units are
// descriptive only: nutrient math always normalizes through the per-100
// reference profile, and the unit never rescales the base.
type MeasureUnit string

const (
	UnitGram       MeasureUnit = "GRAMA"
	UnitMilliliter MeasureUnit = "MILILITRO"
	UnitPiece      MeasureUnit = "UNIDADE"
	UnitSlice      MeasureUnit = "FATIA"
	UnitCup        MeasureUnit = "XICARA"
	UnitTablespoon MeasureUnit = "COLHER_SOPA"
	UnitChunk      MeasureUnit = "PEDACO"
)

// MeasureUnits returns the fixed unit set in selection order.
func MeasureUnits() []MeasureUnit {
	return []MeasureUnit{
		UnitGram, UnitMilliliter, UnitPiece, UnitSlice,
		UnitCup, UnitTablespoon, UnitChunk,
	}
}

var unitAliases = map[string]MeasureUnit{
	"g":          UnitGram,
	"gram":       UnitGram,
	"ml":         UnitMilliliter,
	"milliliter": UnitMilliliter,
	"unit":       UnitPiece,
	"piece":      UnitPiece,
	"slice":      UnitSlice,
	"cup":        UnitCup,
	"tablespoon": UnitTablespoon,
	"tbsp":       UnitTablespoon,
	"chunk":      UnitChunk,
}

// ParseMeasureUnit resolves a wire value ("GRAMA") or an English alias
// ("g", "slice") to a MeasureUnit.
func ParseMeasureUnit(s string) (MeasureUnit, error) {
	if u, ok := unitAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return u, nil
	}
	candidate := MeasureUnit(strings.ToUpper(strings.TrimSpace(s)))
	for _, u := range MeasureUnits() {
		if u == candidate {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown measurement unit %q", s)
}

// Label returns the display label for the unit.
func (u MeasureUnit) Label() string {
	switch u {
	case UnitGram:
		return "g"
	case UnitMilliliter:
		return "ml"
	case UnitPiece:
		return "unidade"
	case UnitSlice:
		return "fatia"
	case UnitCup:
		return "xícara"
	case UnitTablespoon:
		return "colher de sopa"
	case UnitChunk:
		return "pedaço"
	}
	return string(u)
}

// Step is the increment a quantity moves by, and the floor it is clamped
// to: 10 for gram-denominated items, 1 for everything else.
func (u MeasureUnit) Step() float64 {
	if u == UnitGram {
		return 10
	}
	return 1
}

// FoodReference is an immutable catalog entry: a food's name plus its
// nutrient profile per 100 base units.
type FoodReference struct {
	ID             uuid.UUID
	Name           string
	CaloriesPer100 float64
	ProteinPer100  float64
	CarbPer100     float64
	FatPer100      float64
}

// MealItem is one food logged within a meal, in a given quantity and unit.
type MealItem struct {
	Food     FoodReference
	Quantity float64
	Unit     MeasureUnit
}

// Meal is the aggregate for one slot of the tracked day: an ordered item
// list plus the backend id once persisted. RemoteID is uuid.Nil for a
// locally staged, not-yet-saved meal.
type Meal struct {
	Type     MealType
	RemoteID uuid.UUID
	LoggedAt time.Time
	Items    []MealItem
}

// Persisted reports whether the backend has assigned an id to this meal.
func (m *Meal) Persisted() bool {
	return m.RemoteID != uuid.Nil
}

// Clone returns a deep copy. Board snapshots and rollbacks rely on clones
// so callers can never alias board-owned state.
func (m *Meal) Clone() *Meal {
	if m == nil {
		return nil
	}
	out := *m
	out.Items = make([]MealItem, len(m.Items))
	copy(out.Items, m.Items)
	return &out
}
