package service

import (
	"fmt"

	"github.com/bancho-server/internal/domain"
)

var (
	comboMilestones     = []int{500, 750, 1000, 2000}
	playCountMilestones = []uint64{5000, 15000, 25000, 50000}
)

// Achievements lists the achievements unlocked by a play.
// A combo milestone counts when the play reaches it and the previous best on the
// same beatmap did not; a play count milestone counts when this play crossed it.
func Achievements(score *domain.Score, previous *domain.Score, before, after Snapshot) []string {
	unlocked := []string{}
	mode := score.Mode.String()

	prevCombo := 0
	if previous != nil {
		prevCombo = previous.MaxCombo
	}
	for _, m := range comboMilestones {
		if score.MaxCombo >= m && prevCombo < m {
			unlocked = append(unlocked, fmt.Sprintf("%s-combo-%d", mode, m))
		}
	}
	for _, m := range playCountMilestones {
		if before.Stats.PlayCount < m && after.Stats.PlayCount >= m {
			unlocked = append(unlocked, fmt.Sprintf("%s-plays-%d", mode, m))
		}
	}
	return unlocked
}
