package analysis

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func issue(id, issueType string, severity int) Issue {
	return Issue{ConversationID: id, IssueType: issueType, SeverityScore: severity}
}

func TestAggregate_PartitionsByCategory(t *testing.T) {
	t.Parallel()

	issues := []Issue{
		issue("c1", IssueTypeMissedEscalation, 9),
		issue("c1", IssueTypeDeadEnd, 6),
		issue("c2", IssueTypeRepetitive, 3),
		issue("c3", "some_future_type", 6),
	}
	qa := Aggregate(5, issues)

	if qa.TotalAnalyzed != 5 {
		t.Fatalf("TotalAnalyzed=%d, want 5", qa.TotalAnalyzed)
	}
	if len(qa.MissedEscalation) != 1 || len(qa.DeadEnd) != 1 || len(qa.Repetitive) != 1 {
		t.Fatalf("bucket sizes wrong: %+v", qa)
	}
	// Unrecognized types land in the unhelpful catch-all.
	if len(qa.Unhelpful) != 1 {
		t.Fatalf("Unhelpful=%d, want 1 (catch-all)", len(qa.Unhelpful))
	}
	if len(qa.NegativeRating) != 0 || qa.NegativeRating == nil {
		t.Fatalf("empty buckets must be non-nil empty slices")
	}
}

func TestAggregate_SortsBucketsBySeverityDescStable(t *testing.T) {
	t.Parallel()

	issues := []Issue{
		issue("first-medium", IssueTypeDeadEnd, 6),
		issue("high", IssueTypeDeadEnd, 9),
		issue("second-medium", IssueTypeDeadEnd, 6),
		issue("low", IssueTypeDeadEnd, 3),
	}
	qa := Aggregate(4, issues)

	got := make([]string, 0, len(qa.DeadEnd))
	for _, i := range qa.DeadEnd {
		got = append(got, i.ConversationID)
	}
	// Ties keep discovery order: first-medium before second-medium.
	want := []string{"high", "first-medium", "second-medium", "low"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bucket order mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_SummaryStats(t *testing.T) {
	t.Parallel()

	issues := []Issue{
		issue("c1", IssueTypeDeadEnd, 9),
		issue("c1", IssueTypeMissedEscalation, 6),
		issue("c2", IssueTypeRepetitive, 3),
	}
	qa := Aggregate(10, issues)

	if qa.Summary == nil {
		t.Fatalf("Summary=nil")
	}
	if qa.Summary.ConversationsWithIssues != 2 {
		t.Fatalf("ConversationsWithIssues=%d, want 2", qa.Summary.ConversationsWithIssues)
	}
	if qa.Summary.TotalIssuesFound != 3 {
		t.Fatalf("TotalIssuesFound=%d, want 3", qa.Summary.TotalIssuesFound)
	}
	if qa.Summary.AverageSeverity != 6 {
		t.Fatalf("AverageSeverity=%v, want 6", qa.Summary.AverageSeverity)
	}
}

func TestAggregate_NoIssuesNoSummary(t *testing.T) {
	t.Parallel()

	qa := Aggregate(3, nil)
	if qa.Summary != nil {
		t.Fatalf("Summary=%+v, want nil", qa.Summary)
	}
	if qa.TopOffenders != nil {
		t.Fatalf("TopOffenders=%v, want nil", qa.TopOffenders)
	}
}

func TestAggregate_TopOffendersCappedAtTwenty(t *testing.T) {
	t.Parallel()

	var issues []Issue
	for i := 0; i < 30; i++ {
		issues = append(issues, issue("c", IssueTypeDeadEnd, i%10))
	}
	qa := Aggregate(30, issues)
	if len(qa.TopOffenders) != 20 {
		t.Fatalf("TopOffenders=%d, want 20", len(qa.TopOffenders))
	}
	for i := 1; i < len(qa.TopOffenders); i++ {
		if qa.TopOffenders[i].SeverityScore > qa.TopOffenders[i-1].SeverityScore {
			t.Fatalf("TopOffenders not sorted by severity desc at %d", i)
		}
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	t.Parallel()

	// Distinct severities everywhere, so even the stable tie-break cannot
	// make the two orderings differ.
	issues := []Issue{
		issue("c1", IssueTypeDeadEnd, 9),
		issue("c2", IssueTypeDeadEnd, 7),
		issue("c3", IssueTypeRepetitive, 3),
		issue("c4", IssueTypeMissedEscalation, 8),
		issue("c5", IssueTypeDumbQuestion, 6),
	}
	baseline := Aggregate(5, issues)

	shuffled := append([]Issue(nil), issues...)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	again := Aggregate(5, shuffled)

	if diff := cmp.Diff(baseline, again); diff != "" {
		t.Fatalf("aggregate depends on input order (-baseline +shuffled):\n%s", diff)
	}
}
