package interview

// MaxScore is the best possible interview score.
const MaxScore = 100

// ComputeScore turns milestone flags and hint levels into a 0 to 100 score.
// It is a pure function of its inputs.
//
// The flat model awards Points (default 25) for each scoring milestone reached.
// The table model awards each milestone its own points minus the penalty for
// the hint level reached in the milestone's topic.
func ComputeScore(sc Scoring, milestones map[string]bool, hintLevels map[string]int) int {
	total := 0
	for _, m := range sc.Milestones {
		if !milestones[m.Name] {
			continue
		}
		switch sc.Model {
		case ScoringTable:
			pts := m.Points
			if m.Topic != "" && len(m.Penalties) > 0 {
				level := min(hintLevels[m.Topic], len(m.Penalties)-1)
				pts -= m.Penalties[level]
			}
			total += max(pts, 0)
		default:
			pts := sc.Points
			if m.Points > 0 {
				pts = m.Points
			}
			total += pts
		}
	}
	return min(max(total, 0), MaxScore)
}
