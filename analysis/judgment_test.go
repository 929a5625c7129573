package analysis

import (
	"strings"
	"testing"
)

func TestSeverityWeight(t *testing.T) {
	t.Parallel()

	cases := []struct {
		severity Severity
		want     int
	}{
		{SeverityLow, 3},
		{SeverityMedium, 6},
		{SeverityHigh, 9},
		{Severity("catastrophic"), 5},
		{Severity(""), 5},
	}
	for _, tc := range cases {
		if got := tc.severity.Weight(); got != tc.want {
			t.Fatalf("Weight(%q)=%d, want %d", tc.severity, got, tc.want)
		}
	}
}

func TestFlagTypeIssueType_UnknownFallsToUnhelpful(t *testing.T) {
	t.Parallel()

	if got := FlagMissedEscalation.IssueType(); got != IssueTypeMissedEscalation {
		t.Fatalf("IssueType()=%q, want %q", got, IssueTypeMissedEscalation)
	}
	if got := FlagType("SOMETHING_NEW").IssueType(); got != IssueTypeUnhelpful {
		t.Fatalf("unknown flag type mapped to %q, want %q", got, IssueTypeUnhelpful)
	}
}

func TestJudgmentNormalize_FillsAbsentFields(t *testing.T) {
	t.Parallel()

	var j Judgment
	j.Normalize()

	if j.OverallVerdict != VerdictUnknown {
		t.Fatalf("verdict=%q, want %q", j.OverallVerdict, VerdictUnknown)
	}
	if j.Flags == nil {
		t.Fatalf("Flags=nil, want empty slice")
	}
	if j.Positives == nil {
		t.Fatalf("Positives=nil, want empty slice")
	}
	if j.RefusalAssessment.OnTopicRefusalsIncorrect == nil {
		t.Fatalf("OnTopicRefusalsIncorrect=nil, want empty slice")
	}
}

func TestJudgmentNormalize_KeepsExplicitVerdict(t *testing.T) {
	t.Parallel()

	j := Judgment{OverallVerdict: VerdictPass}
	j.Normalize()
	if j.OverallVerdict != VerdictPass {
		t.Fatalf("verdict=%q, want PASS", j.OverallVerdict)
	}
}

func validJudgment() Judgment {
	j := Judgment{
		OverallScore:   72,
		OverallVerdict: VerdictPass,
		Summary:        "handled fine",
		Metrics: MetricsBreakdown{
			CorrectnessScore:       8,
			EscalationScore:        25,
			QuestionQualityScore:   15,
			ProgressScore:          14,
			ToneEncouragementScore: 8,
			NoDeadEndScore:         2,
		},
	}
	j.Normalize()
	return j
}

func TestJudgmentValidate(t *testing.T) {
	t.Parallel()

	j := validJudgment()
	if err := j.Validate(); err != nil {
		t.Fatalf("Validate()=%v, want nil", err)
	}
}

func TestJudgmentValidate_AcceptsUnknownVerdict(t *testing.T) {
	t.Parallel()

	j := validJudgment()
	j.OverallVerdict = VerdictUnknown
	if err := j.Validate(); err != nil {
		t.Fatalf("Validate()=%v, want nil for UNKNOWN verdict", err)
	}
}

func TestJudgmentValidate_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Judgment)
		want   string
	}{
		{"score too high", func(j *Judgment) { j.OverallScore = 101 }, "overall_score"},
		{"score negative", func(j *Judgment) { j.OverallScore = -1 }, "overall_score"},
		{"bad verdict", func(j *Judgment) { j.OverallVerdict = "MAYBE" }, "overall_verdict"},
		{"metric over cap", func(j *Judgment) { j.Metrics.EscalationScore = 31 }, "escalation_score"},
		{"negative cycles", func(j *Judgment) { j.CyclesWithoutProgress = -2 }, "cycles_without_progress"},
		{"negative refusal count", func(j *Judgment) { j.RefusalAssessment.OffTopicRefusalsCount = -1 }, "off_topic_refusals_count"},
		{"bad flag type", func(j *Judgment) {
			j.Flags = append(j.Flags, Flag{Type: "NOT_A_FLAG", Severity: SeverityLow, Confidence: ConfidenceLow})
		}, "type"},
		{"bad flag severity", func(j *Judgment) {
			j.Flags = append(j.Flags, Flag{Type: FlagDeadEnd, Severity: "extreme", Confidence: ConfidenceLow})
		}, "severity"},
		{"negative message index", func(j *Judgment) {
			j.Flags = append(j.Flags, Flag{Type: FlagDeadEnd, Severity: SeverityLow, Confidence: ConfidenceLow, Messages: []int{-1}})
		}, "message"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			j := validJudgment()
			tc.mutate(&j)
			err := j.Validate()
			if err == nil {
				t.Fatalf("Validate()=nil, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate()=%q, want mention of %q", err, tc.want)
			}
		})
	}
}
