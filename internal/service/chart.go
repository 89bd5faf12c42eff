package service

import (
	"strconv"
	"strings"
)

// Chart is one before/after block of the submission response
type Chart struct {
	ID                string
	Name              string
	URL               string
	RankBefore        int64
	RankAfter         int64
	MaxComboBefore    int
	MaxComboAfter     int
	AccuracyBefore    float64 // percent
	AccuracyAfter     float64
	RankedScoreBefore uint64
	RankedScoreAfter  uint64
	PPBefore          float64
	PPAfter           float64
	OnlineScoreID     int64
	Achievements      []string
	ListAchievements  bool
}

// String renders the chart in the client's pipe separated format.
// Zero ranks render empty, meaning "no previous placement".
func (c Chart) String() string {
	var b strings.Builder
	field := func(key, value string) {
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(value)
	}

	field("chartId", c.ID)
	field("chartName", c.Name)
	field("chartUrl", c.URL)
	field("rankBefore", rank(c.RankBefore))
	field("rankAfter", rank(c.RankAfter))
	field("maxComboBefore", strconv.Itoa(c.MaxComboBefore))
	field("maxComboAfter", strconv.Itoa(c.MaxComboAfter))
	field("accuracyBefore", decimal(c.AccuracyBefore))
	field("accuracyAfter", decimal(c.AccuracyAfter))
	field("rankedScoreBefore", strconv.FormatUint(c.RankedScoreBefore, 10))
	field("rankedScoreAfter", strconv.FormatUint(c.RankedScoreAfter, 10))
	field("ppBefore", decimal(c.PPBefore))
	field("ppAfter", decimal(c.PPAfter))
	field("onlineScoreId", strconv.FormatInt(c.OnlineScoreID, 10))
	if c.ListAchievements {
		field("achievements-new", strings.Join(c.Achievements, "/"))
	}
	return b.String()
}

func rank(r int64) string {
	if r <= 0 {
		return ""
	}
	return strconv.FormatInt(r, 10)
}

func decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
