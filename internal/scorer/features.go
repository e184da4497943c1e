// internal/scorer/features.go
package scorer

import (
	"math"

	"menuranker/internal/common/config"
	"menuranker/internal/models"
)

// FeaturePayload is the locally computed context sent with each item so the
// scoring model grounds its judgment in the same numbers we can verify.
type FeaturePayload struct {
	SatietyIndex    float64 `json:"satietyIndex"`    // 0-100
	PriceEfficiency float64 `json:"priceEfficiency"` // 0-100
	BaselineScore   float64 `json:"baselineScore"`   // weighted blend, 0-100
}

// ComputeFeatures derives the satiety and price-efficiency features for one
// item against the configured typical-meal anchors.
//
// Satiety saturates: a 2000-calorie meal is not 2.5x as filling as an
// 800-calorie one, so the raw fullness ratio runs through 1-e^-x before
// scaling to 0-100.
func ComputeFeatures(item models.MenuItem, ranking config.RankingConfig) FeaturePayload {
	f := FeaturePayload{
		SatietyIndex:    satietyIndex(item, ranking),
		PriceEfficiency: priceEfficiency(item, ranking),
	}
	f.BaselineScore = clamp(ranking.SatietyWeight*f.SatietyIndex + ranking.PriceWeight*f.PriceEfficiency)
	return f
}

func satietyIndex(item models.MenuItem, ranking config.RankingConfig) float64 {
	var fullness float64
	switch {
	case item.Nutrition != nil:
		fullness = float64(item.Nutrition.Calories)/float64(ranking.TypicalMealCalories)*0.7 +
			item.Nutrition.ProteinGrams/ranking.TypicalMealProtein*0.3
	case item.PortionSizeGrams > 0:
		// No macros; portion weight against a 500 g typical meal is the
		// best available proxy.
		fullness = float64(item.PortionSizeGrams) / 500.0
	default:
		return 0
	}
	return clamp((1 - math.Exp(-fullness)) * 100)
}

func priceEfficiency(item models.MenuItem, ranking config.RankingConfig) float64 {
	if item.PriceCents <= 0 {
		return 0
	}
	typicalCents := ranking.TypicalMealPrice * 100

	// With calories known, compare price-per-calorie against the typical
	// meal; a deal at half the typical price-per-calorie scores 100.
	if item.Nutrition != nil && item.Nutrition.Calories > 0 {
		typicalPPC := typicalCents / float64(ranking.TypicalMealCalories)
		dealPPC := float64(item.PriceCents) / float64(item.Nutrition.Calories)
		return clamp(typicalPPC / dealPPC * 50)
	}

	// Otherwise compare absolute price against the typical meal price.
	return clamp(typicalCents / float64(item.PriceCents) * 50)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
