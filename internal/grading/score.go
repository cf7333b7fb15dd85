package grading

// MaxScore is the score at which expected findings are revealed.
const MaxScore = 100

// PointsPerFinding returns the per-finding share of the 100-point total,
// using floor division. Returns 0 for an empty findings list; callers
// guard against ungradable cases upstream.
func PointsPerFinding(findingCount int) int {
	if findingCount <= 0 {
		return 0
	}
	return MaxScore / findingCount
}

// FirstAttemptScore awards full per-finding credit for each match.
// When every finding is matched the score is promoted to exactly MaxScore,
// so the reveal threshold stays reachable when 100 is not divisible by the
// finding count (three findings would otherwise top out at 99).
func FirstAttemptScore(matches []bool) int {
	if len(matches) == 0 {
		return 0
	}
	points := PointsPerFinding(len(matches))
	score := 0
	all := true
	for _, m := range matches {
		if m {
			score += points
		} else {
			all = false
		}
	}
	if all {
		return MaxScore
	}
	return clampScore(score)
}

// CumulativeScore scores a second attempt: findings matched on the first
// attempt keep full credit, findings newly matched on the second earn half
// credit (floor), and findings missed on both earn nothing. The two slices
// must align with the same expected-findings list.
func CumulativeScore(first, second []bool) int {
	if len(first) == 0 {
		return 0
	}
	points := PointsPerFinding(len(first))
	score := 0
	allFirst := true
	for i, m := range first {
		switch {
		case m:
			score += points
		case i < len(second) && second[i]:
			allFirst = false
			score += points / 2
		default:
			allFirst = false
		}
	}
	if allFirst {
		return MaxScore
	}
	return clampScore(score)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
