package scoring

import (
	"errors"
	"testing"

	"github.com/bancho-server/internal/domain"
)

func TestDecodeRoundTrip(t *testing.T) {
	in := &domain.ScoreDraft{
		Score: domain.Score{
			BeatmapMD5: "a5b99395a42bd55bc5eb1d2411cbdf8b",
			Count300:   500,
			Count100:   12,
			Count50:    1,
			CountMiss:  2,
			TotalScore: 1234567,
			MaxCombo:   700,
			Mods:       domain.ModHidden | domain.ModDoubleTime,
			Mode:       domain.ModeOsu,
		},
		Username: "Cookiezi",
		Passed:   true,
		Grade:    "A",
	}

	out, err := PlainDecoder{}.Decode(Encode(in), "", "20240101")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Username != "Cookiezi" || out.TotalScore != 1234567 || out.Mods != in.Mods || !out.Passed {
		t.Fatalf("decoded = %+v", out)
	}
	if out.Count300 != 500 || out.CountMiss != 2 || out.MaxCombo != 700 {
		t.Fatalf("hit counts = %+v", out.Score)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]string{
		"too short":    "a:b:c",
		"bad mode":     "md5:user:x:1:1:1:1:1:1:100:5:False:A:0:True:9",
		"bad total":    "md5:user:x:1:1:1:1:1:1:abc:5:False:A:0:True:0",
		"missing user": "md5::x:1:1:1:1:1:1:100:5:False:A:0:True:0",
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := (PlainDecoder{}).Decode(blob, "", ""); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, err := PlainDecoder{}.Decode("md5:user:x:1:1:1:1:1:1:100:5:False:A:0:True:7", "", "")
	if !errors.Is(err, domain.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
}

func TestStarScorer(t *testing.T) {
	bm := &domain.Beatmap{StarRating: 5, MaxCombo: 1000}
	fc := &domain.Score{Mode: domain.ModeOsu, Count300: 1000, MaxCombo: 1000}
	choke := &domain.Score{Mode: domain.ModeOsu, Count300: 990, CountMiss: 10, MaxCombo: 400}

	s := StarScorer{}
	full := s.PerformancePoints(fc, bm)
	if full <= 0 {
		t.Fatalf("full combo pp = %v", full)
	}
	if got := s.PerformancePoints(choke, bm); got >= full {
		t.Errorf("choke pp %v >= full combo pp %v", got, full)
	}
	if got := s.PerformancePoints(fc, nil); got != 0 {
		t.Errorf("pp without beatmap = %v", got)
	}
}
