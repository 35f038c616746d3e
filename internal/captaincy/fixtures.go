package captaincy

import "sort"

// FixtureSummary describes the difficulty of a roster's next fixtures.
type FixtureSummary struct {
	AverageDifficulty float64 `json:"average_difficulty"`
	Known             int     `json:"known"`
	Home              int     `json:"home"`
	Away              int     `json:"away"`
	Blank             int     `json:"blank"`
	Easy              []int   `json:"easy"`
	Hard              []int   `json:"hard"`
}

// AnalyzeFixtures counts home and away fixtures and lists members facing an
// easy (FDR <= 2) or hard (FDR >= 4) opponent. Members with unknown
// difficulty or a blank gameweek are left out of the average.
func AnalyzeFixtures(members []Member) FixtureSummary {
	out := FixtureSummary{Easy: []int{}, Hard: []int{}}
	total := 0.0
	for _, m := range members {
		if m.Situational.BlankGameweek {
			out.Blank++
			continue
		}
		if m.Situational.Home {
			out.Home++
		} else {
			out.Away++
		}
		d := m.OpponentDifficulty
		if d <= 0 {
			continue
		}
		out.Known++
		total += d
		switch {
		case d <= 2:
			out.Easy = append(out.Easy, m.ID)
		case d >= 4:
			out.Hard = append(out.Hard, m.ID)
		}
	}
	if out.Known > 0 {
		out.AverageDifficulty = total / float64(out.Known)
	}
	sort.Ints(out.Easy)
	sort.Ints(out.Hard)
	return out
}
