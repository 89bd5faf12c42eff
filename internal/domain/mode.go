package domain

import (
	"fmt"
	"strings"
)

// PlayMode is one of the four rulesets
type PlayMode uint8

const (
	ModeOsu PlayMode = iota
	ModeTaiko
	ModeCatch
	ModeMania
)

// ModeCount is the number of rulesets tracked per leaderboard entry
const ModeCount = 4

// Modes lists every play mode in wire order
var Modes = [ModeCount]PlayMode{ModeOsu, ModeTaiko, ModeCatch, ModeMania}

// Valid reports whether the mode is one of the known rulesets
func (m PlayMode) Valid() bool {
	return m < ModeCount
}

func (m PlayMode) String() string {
	switch m {
	case ModeOsu:
		return "osu"
	case ModeTaiko:
		return "taiko"
	case ModeCatch:
		return "catch"
	case ModeMania:
		return "mania"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode converts a mode name or its numeric form into a PlayMode
func ParseMode(s string) (PlayMode, error) {
	switch strings.ToLower(s) {
	case "0", "osu", "std", "standard":
		return ModeOsu, nil
	case "1", "taiko":
		return ModeTaiko, nil
	case "2", "catch", "ctb", "fruits":
		return ModeCatch, nil
	case "3", "mania":
		return ModeMania, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Mods is the modifier bitmask carried by scores and statuses
type Mods uint32

const (
	ModNone        Mods = 0
	ModNoFail      Mods = 1 << 0
	ModEasy        Mods = 1 << 1
	ModTouchDevice Mods = 1 << 2
	ModHidden      Mods = 1 << 3
	ModHardRock    Mods = 1 << 4
	ModSuddenDeath Mods = 1 << 5
	ModDoubleTime  Mods = 1 << 6
	ModRelax       Mods = 1 << 7
	ModHalfTime    Mods = 1 << 8
	ModNightcore   Mods = 1 << 9
	ModFlashlight  Mods = 1 << 10
	ModAutoplay    Mods = 1 << 11
	ModSpunOut     Mods = 1 << 12
	ModAutopilot   Mods = 1 << 13
	ModPerfect     Mods = 1 << 14
	ModKey4        Mods = 1 << 15
	ModKey5        Mods = 1 << 16
	ModKey6        Mods = 1 << 17
	ModKey7        Mods = 1 << 18
	ModKey8        Mods = 1 << 19
	ModFadeIn      Mods = 1 << 20
	ModRandom      Mods = 1 << 21
	ModCinema      Mods = 1 << 22
	ModTarget      Mods = 1 << 23
	ModKey9        Mods = 1 << 24
	ModKeyCoop     Mods = 1 << 25
	ModKey1        Mods = 1 << 26
	ModKey3        Mods = 1 << 27
	ModKey2        Mods = 1 << 28
	ModScoreV2     Mods = 1 << 29
	ModMirror      Mods = 1 << 30
)

// unrankedMods never count toward ranked score or performance points
const unrankedMods = ModAutoplay | ModCinema | ModTarget | ModAutopilot | ModScoreV2 | ModKeyCoop | ModRandom

// exclusiveMods are pairs that cannot legitimately be combined
var exclusiveMods = [][2]Mods{
	{ModEasy, ModHardRock},
	{ModDoubleTime, ModHalfTime},
	{ModNightcore, ModHalfTime},
	{ModNoFail, ModSuddenDeath},
	{ModNoFail, ModPerfect},
	{ModRelax, ModNoFail},
	{ModRelax, ModSuddenDeath},
	{ModRelax, ModPerfect},
}

// Has reports whether every bit of o is set in m
func (m Mods) Has(o Mods) bool {
	return m&o == o
}

// IsRanked reports whether the combination may produce a ranked score
func (m Mods) IsRanked() bool {
	if m&unrankedMods != 0 {
		return false
	}
	for _, pair := range exclusiveMods {
		if m.Has(pair[0]) && m.Has(pair[1]) {
			return false
		}
	}
	// Nightcore implies DoubleTime, Perfect implies SuddenDeath
	if m.Has(ModNightcore) && !m.Has(ModDoubleTime) {
		return false
	}
	if m.Has(ModPerfect) && !m.Has(ModSuddenDeath) {
		return false
	}
	return true
}

var modNames = []struct {
	mod  Mods
	name string
}{
	{ModNoFail, "NF"},
	{ModEasy, "EZ"},
	{ModTouchDevice, "TD"},
	{ModHidden, "HD"},
	{ModHardRock, "HR"},
	{ModPerfect, "PF"},
	{ModSuddenDeath, "SD"},
	{ModNightcore, "NC"},
	{ModDoubleTime, "DT"},
	{ModRelax, "RX"},
	{ModHalfTime, "HT"},
	{ModFlashlight, "FL"},
	{ModAutoplay, "AT"},
	{ModSpunOut, "SO"},
	{ModAutopilot, "AP"},
	{ModFadeIn, "FI"},
	{ModRandom, "RD"},
	{ModCinema, "CN"},
	{ModTarget, "TP"},
	{ModScoreV2, "V2"},
	{ModMirror, "MR"},
}

// String renders the short modifier names, "NM" for no modifiers
func (m Mods) String() string {
	if m == ModNone {
		return "NM"
	}
	var b strings.Builder
	for _, mn := range modNames {
		if !m.Has(mn.mod) {
			continue
		}
		// NC and PF already imply DT and SD
		if mn.mod == ModDoubleTime && m.Has(ModNightcore) {
			continue
		}
		if mn.mod == ModSuddenDeath && m.Has(ModPerfect) {
			continue
		}
		b.WriteString(mn.name)
	}
	if b.Len() == 0 {
		return "NM"
	}
	return b.String()
}
