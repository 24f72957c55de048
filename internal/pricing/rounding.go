package pricing

import (
	"math"

	"shop-assistant/internal/models"
)

// applyRounding snaps a price to the rule's granularity. Every strategy is
// idempotent: rounding an already-rounded price is a no-op.
func applyRounding(price float64, strategy models.RoundingStrategy) float64 {
	switch strategy {
	case models.RoundingFloorTo1:
		return math.Floor(price)
	case models.RoundingCeilTo1:
		return math.Ceil(price)
	case models.RoundingRoundTo1:
		return math.Round(price)
	case models.RoundingRoundToHalf:
		return math.Round(price*2) / 2
	case models.RoundingFloorToHalf:
		return math.Floor(price*2) / 2
	default:
		return price
	}
}
