package match

import (
	"sort"
	"strings"
)

// Tier is the skill bracket derived from a rank string. It is used only
// to select phase durations, never for gating or scoring.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
	TierMaster   Tier = "master"
)

// tierOrder is the substring match order for TierOf.
var tierOrder = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond, TierMaster}

// TierOf maps a rank string (e.g. "Gold II") to its tier by substring
// match, case-insensitive. Unknown ranks default to silver.
func TierOf(rank string) Tier {
	lower := strings.ToLower(rank)
	for _, t := range tierOrder {
		if strings.Contains(lower, string(t)) {
			return t
		}
	}
	return TierSilver
}

// MedianRank returns the representative rank for duration lookup: the
// non-empty ranks of all non-AI players, sorted lexicographically, at the
// lower-middle index. Returns "" when no non-AI player has a rank.
func (s *Session) MedianRank() string {
	ranks := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		if p.IsAI || p.Rank == "" {
			continue
		}
		ranks = append(ranks, p.Rank)
	}
	if len(ranks) == 0 {
		return ""
	}
	sort.Strings(ranks)
	return ranks[(len(ranks)-1)/2]
}
