// Package nutrition computes per-portion and aggregate nutrient values.
//
// Every food profile is defined per 100 base units and scales linearly
// with the requested quantity. The measurement unit deliberately does not
// participate: the backend applies the same per-100 factor regardless of
// unit, and this client mirrors that contract.
package nutrition

import (
	"math"

	"github.com/starford/nutriboard/internal/apperr"
	"github.com/starford/nutriboard/internal/models"
)

// baseDivisor is the reference portion size the catalog profiles use.
const baseDivisor = 100

// Facts holds unrounded nutrient values. Keep them unrounded while
// summing; round only at the display boundary so per-item rounding error
// never compounds across a meal.
type Facts struct {
	Calories float64
	ProteinG float64
	CarbG    float64
	FatG     float64
}

// Add returns the component-wise sum of two Facts.
func (f Facts) Add(o Facts) Facts {
	return Facts{
		Calories: f.Calories + o.Calories,
		ProteinG: f.ProteinG + o.ProteinG,
		CarbG:    f.CarbG + o.CarbG,
		FatG:     f.FatG + o.FatG,
	}
}

// ForQuantity scales a food's per-100 profile to the requested quantity.
func ForQuantity(food models.FoodReference, quantity float64) (Facts, error) {
	if quantity <= 0 {
		return Facts{}, apperr.ErrInvalidQuantity
	}
	factor := quantity / baseDivisor
	return Facts{
		Calories: food.CaloriesPer100 * factor,
		ProteinG: food.ProteinPer100 * factor,
		CarbG:    food.CarbPer100 * factor,
		FatG:     food.FatPer100 * factor,
	}, nil
}

// ItemFacts computes the contribution of a single meal item.
func ItemFacts(item models.MealItem) (Facts, error) {
	return ForQuantity(item.Food, item.Quantity)
}

// MealFacts sums the unrounded contributions of every item in the meal.
func MealFacts(m *models.Meal) Facts {
	var total Facts
	if m == nil {
		return total
	}
	for _, item := range m.Items {
		f, err := ItemFacts(item)
		if err != nil {
			// Items with non-positive quantities cannot enter a meal;
			// skip rather than poison the subtotal if one ever does.
			continue
		}
		total = total.Add(f)
	}
	return total
}

// DisplayCalories rounds calories to the nearest whole kcal.
func DisplayCalories(f Facts) int {
	return int(math.Round(f.Calories))
}

// DisplayGrams rounds a gram value to one decimal place.
func DisplayGrams(v float64) float64 {
	return math.Round(v*10) / 10
}
