package domain

import "math"

// ─── Level Table ────────────────────────────────────────────────────────────
// 30 contiguous levels. Level 1 starts at 0 XP, level i ≥ 2 at
// floor(100 · 1.5^(i-1)). MaxXP(i) = MinXP(i+1) - 1; the top level is open.

// MaxLevel is the highest reachable level.
const MaxLevel = 30

// Level is one row of the static level table.
type Level struct {
	Level int    `json:"level"`
	MinXP int64  `json:"min_xp"`
	MaxXP int64  `json:"max_xp"` // -1 for the top level
	Title string `json:"title"`
}

var levelTitles = [MaxLevel]string{
	"Straniero", "Visitatore", "Turista", "Ospite", "Residente",
	"Studente", "Apprendista", "Lettore", "Conoscitore", "Vicino di Casa",
	"Abitante", "Lavoratore", "Contribuente", "Volontario", "Consigliere",
	"Esperto Civico", "Storico", "Giurista", "Costituzionalista", "Ambasciatore",
	"Mentore", "Maestro", "Decano", "Senatore", "Patriota",
	"Custode della Repubblica", "Emerito", "Cittadino Attivo", "Cittadino Modello", "Cittadino Onorario",
}

var levelTable = buildLevelTable()

func minXPFor(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(math.Floor(100 * math.Pow(1.5, float64(level-1))))
}

func buildLevelTable() []Level {
	table := make([]Level, MaxLevel)
	for i := range table {
		lvl := i + 1
		table[i] = Level{
			Level: lvl,
			MinXP: minXPFor(lvl),
			MaxXP: minXPFor(lvl+1) - 1,
			Title: levelTitles[i],
		}
	}
	table[MaxLevel-1].MaxXP = -1
	return table
}

// Levels returns a copy of the level table.
func Levels() []Level {
	out := make([]Level, len(levelTable))
	copy(out, levelTable)
	return out
}

// LevelFor returns the level reached with xp experience points.
func LevelFor(xp int64) int {
	return levelIn(levelTable, xp)
}

// levelIn scans from the highest level down and returns the first level whose
// MinXP ≤ xp. Negative xp and an empty table yield level 1.
func levelIn(table []Level, xp int64) int {
	if xp < 0 {
		return 1
	}
	for i := len(table) - 1; i >= 0; i-- {
		if table[i].MinXP <= xp {
			return table[i].Level
		}
	}
	return 1
}

// LevelInfo returns the table row for level, clamped to [1, MaxLevel].
func LevelInfo(level int) Level {
	if level < 1 {
		level = 1
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return levelTable[level-1]
}

// XPToNext returns the XP still needed to reach the next level.
// Zero at the top level.
func XPToNext(xp int64) int64 {
	lvl := LevelFor(xp)
	if lvl >= MaxLevel {
		return 0
	}
	return LevelInfo(lvl+1).MinXP - xp
}

// LevelProgressPct returns progress through the current level in [0, 100].
func LevelProgressPct(xp int64) float64 {
	lvl := LevelInfo(LevelFor(xp))
	if lvl.Level >= MaxLevel {
		return 100
	}
	span := float64(lvl.MaxXP - lvl.MinXP + 1)
	pct := float64(xp-lvl.MinXP) / span * 100
	if pct < 0 {
		return 0
	}
	return pct
}
