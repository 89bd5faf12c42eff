package domain

// Beatmap is the metadata returned by the beatmap mirror
type Beatmap struct {
	ID         int32   `json:"BeatmapID"`
	SetID      int32   `json:"ParentSetID"`
	MD5        string  `json:"FileMD5"`
	DiffName   string  `json:"DiffName"`
	Mode       int     `json:"Mode"`
	StarRating float64 `json:"DifficultyRating"`
	MaxCombo   int     `json:"MaxCombo"`
	Title      string  `json:"-"`
	Artist     string  `json:"-"`
	Status     int     `json:"-"`
}

// Mirror ranked statuses
const (
	StatusGraveyard = -2
	StatusWIP       = -1
	StatusPending   = 0
	StatusRanked    = 1
	StatusApproved  = 2
	StatusQualified = 3
	StatusLoved     = 4
)

// BeatmapSet is a mirror beatmap set with its difficulties
type BeatmapSet struct {
	SetID            int32     `json:"SetID"`
	Title            string    `json:"Title"`
	Artist           string    `json:"Artist"`
	RankedStatus     int       `json:"RankedStatus"`
	ChildrenBeatmaps []Beatmap `json:"ChildrenBeatmaps"`
}

// Find returns the difficulty with the given file hash
func (s *BeatmapSet) Find(md5 string) (*Beatmap, bool) {
	for i := range s.ChildrenBeatmaps {
		if s.ChildrenBeatmaps[i].MD5 == md5 {
			bm := s.ChildrenBeatmaps[i]
			bm.Title = s.Title
			bm.Artist = s.Artist
			bm.Status = s.RankedStatus
			return &bm, true
		}
	}
	return nil, false
}

// DisplayName is "Artist - Title [Difficulty]"
func (b *Beatmap) DisplayName() string {
	if b.Artist == "" {
		return b.Title + " [" + b.DiffName + "]"
	}
	return b.Artist + " - " + b.Title + " [" + b.DiffName + "]"
}

// Ranked reports whether plays on the beatmap count toward rankings
func (b *Beatmap) Ranked() bool {
	return b.Status >= StatusRanked
}
