// Package scoring decodes submitted score blobs and rates plays.
package scoring

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bancho-server/internal/domain"
)

// minFields is the number of leading colon separated fields every client sends
const minFields = 16

// PlainDecoder reads score blobs that arrive already decrypted, either as raw
// text or base64 encoded text. Decryption belongs to a fronting proxy.
type PlainDecoder struct{}

// Decode parses
//
//	md5:username:checksum:n300:n100:n50:geki:katu:miss:score:combo:perfect:grade:mods:pass:mode[:date:version...]
func (PlainDecoder) Decode(blob, _, _ string) (*domain.ScoreDraft, error) {
	text := blob
	if raw, err := base64.StdEncoding.DecodeString(blob); err == nil && strings.Contains(string(raw), ":") {
		text = string(raw)
	}
	f := strings.Split(text, ":")
	if len(f) < minFields {
		return nil, fmt.Errorf("%w: %d fields", domain.ErrInvalidScore, len(f))
	}

	d := &domain.ScoreDraft{
		Username:       strings.TrimRight(f[1], " "),
		ClientChecksum: f[2],
		Grade:          f[12],
	}
	d.BeatmapMD5 = f[0]

	ints := []struct {
		dst *int
		idx int
	}{
		{&d.Count300, 3}, {&d.Count100, 4}, {&d.Count50, 5},
		{&d.CountGeki, 6}, {&d.CountKatu, 7}, {&d.CountMiss, 8},
		{&d.MaxCombo, 10},
	}
	for _, it := range ints {
		v, err := strconv.Atoi(f[it.idx])
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: field %d", domain.ErrInvalidScore, it.idx)
		}
		*it.dst = v
	}

	total, err := strconv.ParseInt(f[9], 10, 64)
	if err != nil || total < 0 {
		return nil, fmt.Errorf("%w: total score", domain.ErrInvalidScore)
	}
	d.TotalScore = total

	d.Perfect = parseBool(f[11])
	mods, err := strconv.ParseUint(f[13], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: mods", domain.ErrInvalidScore)
	}
	d.Mods = domain.Mods(mods)
	d.Passed = parseBool(f[14])

	mode, err := strconv.Atoi(f[15])
	if err != nil || !domain.PlayMode(mode).Valid() {
		return nil, fmt.Errorf("%w: mode %q", domain.ErrInvalidMode, f[15])
	}
	d.Mode = domain.PlayMode(mode)

	if len(f) > 16 {
		if ts, err := time.Parse("060102150405", f[16]); err == nil {
			d.SubmittedAt = ts
		}
	}
	if d.BeatmapMD5 == "" || d.Username == "" {
		return nil, fmt.Errorf("%w: missing beatmap or user", domain.ErrInvalidScore)
	}
	return d, nil
}

func parseBool(s string) bool {
	return strings.EqualFold(s, "true") || s == "1"
}

// Encode renders a draft in the format Decode accepts
func Encode(d *domain.ScoreDraft) string {
	return strings.Join([]string{
		d.BeatmapMD5,
		d.Username,
		d.ClientChecksum,
		strconv.Itoa(d.Count300),
		strconv.Itoa(d.Count100),
		strconv.Itoa(d.Count50),
		strconv.Itoa(d.CountGeki),
		strconv.Itoa(d.CountKatu),
		strconv.Itoa(d.CountMiss),
		strconv.FormatInt(d.TotalScore, 10),
		strconv.Itoa(d.MaxCombo),
		boolString(d.Perfect),
		d.Grade,
		strconv.FormatUint(uint64(d.Mods), 10),
		boolString(d.Passed),
		strconv.Itoa(int(d.Mode)),
	}, ":")
}

func boolString(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
