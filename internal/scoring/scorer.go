package scoring

import (
	"math"

	"github.com/bancho-server/internal/domain"
)

// StarScorer rates plays from the beatmap's star rating, accuracy, combo and misses.
// It is a stand-in curve, not a reproduction of any official formula.
type StarScorer struct{}

var modMultipliers = []struct {
	mod domain.Mods
	mul float64
}{
	{domain.ModNoFail, 0.90},
	{domain.ModEasy, 0.50},
	{domain.ModHalfTime, 0.30},
	{domain.ModSpunOut, 0.95},
	{domain.ModHidden, 1.06},
	{domain.ModHardRock, 1.10},
	{domain.ModDoubleTime, 1.12},
	{domain.ModFlashlight, 1.12},
}

func (StarScorer) PerformancePoints(score *domain.Score, beatmap *domain.Beatmap) float64 {
	if beatmap == nil || beatmap.StarRating <= 0 {
		return 0
	}
	base := math.Pow(5*math.Max(1, beatmap.StarRating/0.0675)-4, 3) / 100000

	acc := score.Accuracy
	if acc == 0 {
		acc = domain.Accuracy(score)
	}
	pp := base * math.Pow(acc, 5)

	if beatmap.MaxCombo > 0 && score.MaxCombo < beatmap.MaxCombo {
		pp *= math.Min(1, math.Pow(float64(score.MaxCombo)/float64(beatmap.MaxCombo), 0.8))
	}
	pp *= math.Pow(0.97, float64(score.CountMiss))

	for _, m := range modMultipliers {
		if score.Mods.Has(m.mod) {
			pp *= m.mul
		}
	}
	if math.IsNaN(pp) || math.IsInf(pp, 0) || pp < 0 {
		return 0
	}
	return pp
}
