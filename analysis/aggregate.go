package analysis

import (
	"sort"
)

// Aggregate partitions issues into category buckets by issue type and sorts
// each bucket by severity descending. The computation is pure and independent
// of input order up to the stable discovery-order tie-break, so it can be
// re-derived at any time from persisted judgments.
func Aggregate(totalAnalyzed int, issues []Issue) QualityAnalysis {
	qa := QualityAnalysis{
		TotalAnalyzed:       totalAnalyzed,
		Repetitive:          []Issue{},
		Unhelpful:           []Issue{},
		TooManyTurns:        []Issue{},
		DeadEnd:             []Issue{},
		NegativeRating:      []Issue{},
		ObviousWrongAnswers: []Issue{},
		MissedEscalation:    []Issue{},
		DumbQuestions:       []Issue{},
		LackOfEncouragement: []Issue{},
	}

	for _, issue := range issues {
		switch issue.IssueType {
		case IssueTypeRepetitive:
			qa.Repetitive = append(qa.Repetitive, issue)
		case IssueTypeTooManyTurns:
			qa.TooManyTurns = append(qa.TooManyTurns, issue)
		case IssueTypeDeadEnd:
			qa.DeadEnd = append(qa.DeadEnd, issue)
		case IssueTypeNegativeRating:
			qa.NegativeRating = append(qa.NegativeRating, issue)
		case IssueTypeObviousWrongAnswer:
			qa.ObviousWrongAnswers = append(qa.ObviousWrongAnswers, issue)
		case IssueTypeMissedEscalation:
			qa.MissedEscalation = append(qa.MissedEscalation, issue)
		case IssueTypeDumbQuestion:
			qa.DumbQuestions = append(qa.DumbQuestions, issue)
		case IssueTypeLackOfEncouragement:
			qa.LackOfEncouragement = append(qa.LackOfEncouragement, issue)
		default:
			// Catch-all for unrecognized types, IssueTypeUnhelpful included.
			qa.Unhelpful = append(qa.Unhelpful, issue)
		}
	}

	for _, bucket := range [][]Issue{
		qa.Repetitive, qa.Unhelpful, qa.TooManyTurns, qa.DeadEnd,
		qa.NegativeRating, qa.ObviousWrongAnswers, qa.MissedEscalation,
		qa.DumbQuestions, qa.LackOfEncouragement,
	} {
		sortBySeverityDesc(bucket)
	}

	if len(issues) > 0 {
		qa.Summary = summarize(issues)
		qa.TopOffenders = topOffenders(issues, 20)
	}
	return qa
}

// sortBySeverityDesc orders a bucket by severity descending; ties keep their
// original discovery order.
func sortBySeverityDesc(issues []Issue) {
	sort.SliceStable(issues, func(i, k int) bool {
		return issues[i].SeverityScore > issues[k].SeverityScore
	})
}

func summarize(issues []Issue) *SummaryStats {
	distinct := make(map[string]struct{}, len(issues))
	total := 0
	for _, issue := range issues {
		distinct[issue.ConversationID] = struct{}{}
		total += issue.SeverityScore
	}
	return &SummaryStats{
		ConversationsWithIssues: len(distinct),
		AverageSeverity:         float64(total) / float64(len(issues)),
		TotalIssuesFound:        len(issues),
	}
}

// topOffenders returns the n highest-severity issues across all categories,
// severity descending with the same stable tie-break as the buckets.
func topOffenders(issues []Issue, n int) []Issue {
	ranked := append([]Issue(nil), issues...)
	sortBySeverityDesc(ranked)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
