package analysis

import (
	"fmt"
)

// Verdict is the judge's overall call on a conversation.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
	// VerdictUnknown is the sentinel applied when a persisted judgment omits
	// the verdict.
	VerdictUnknown Verdict = "UNKNOWN"
)

// Severity of a flagged issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Weight maps a severity to the numeric score used for sorting issues.
// Unrecognized severities (possible in hand-edited or legacy judgment files)
// weigh in between low and medium.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 3
	case SeverityMedium:
		return 6
	case SeverityHigh:
		return 9
	default:
		return 5
	}
}

// Confidence the judge assigns to a flag.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// FlagType is the closed enumeration of Tier-0 failure kinds the judge may
// report.
type FlagType string

const (
	FlagObviousWrongAnswer  FlagType = "OBVIOUS_WRONG_ANSWER"
	FlagMissedEscalation    FlagType = "MISSED_ESCALATION"
	FlagDumbQuestion        FlagType = "DUMB_QUESTION"
	FlagRepetitive          FlagType = "REPETITIVE"
	FlagLackOfEncouragement FlagType = "LACK_OF_ENCOURAGEMENT"
	FlagDeadEnd             FlagType = "DEAD_END"
)

// IssueType returns the reporting-facing category for this flag type. Unknown
// types fall into the unhelpful catch-all bucket.
func (t FlagType) IssueType() string {
	switch t {
	case FlagObviousWrongAnswer:
		return IssueTypeObviousWrongAnswer
	case FlagMissedEscalation:
		return IssueTypeMissedEscalation
	case FlagDumbQuestion:
		return IssueTypeDumbQuestion
	case FlagRepetitive:
		return IssueTypeRepetitive
	case FlagLackOfEncouragement:
		return IssueTypeLackOfEncouragement
	case FlagDeadEnd:
		return IssueTypeDeadEnd
	default:
		return IssueTypeUnhelpful
	}
}

// Positive behaviors the judge may recognize.
const (
	PositiveFastObviousAnswer  = "fast_obvious_answer"
	PositiveClearEscalation    = "clear_escalation"
	PositiveEmpatheticTone     = "empathetic_tone"
	PositiveGoodConstraintsUse = "good_constraints_use"
	PositiveConciseSteps       = "concise_steps"
)

// Flag is one issue instance inside a judgment. Message indices reference the
// zero-based enumeration used in the judge prompt.
type Flag struct {
	Type           FlagType   `json:"type" jsonschema:"enum=OBVIOUS_WRONG_ANSWER,enum=MISSED_ESCALATION,enum=DUMB_QUESTION,enum=REPETITIVE,enum=LACK_OF_ENCOURAGEMENT,enum=DEAD_END"`
	Severity       Severity   `json:"severity" jsonschema:"enum=low,enum=medium,enum=high"`
	Confidence     Confidence `json:"confidence" jsonschema:"enum=low,enum=medium,enum=high"`
	Messages       []int      `json:"messages"`
	Evidence       string     `json:"evidence"`
	WhyItMatters   string     `json:"why_it_matters"`
	RecommendedFix string     `json:"recommended_fix"`
}

// PositiveNote is a positive behavior the judge observed.
type PositiveNote struct {
	Behavior string `json:"behavior" jsonschema:"enum=fast_obvious_answer,enum=clear_escalation,enum=empathetic_tone,enum=good_constraints_use,enum=concise_steps"`
	Messages []int  `json:"messages"`
	Evidence string `json:"evidence"`
}

// MetricsBreakdown holds the judge's sub-scores. The ranges sum to the 0-100
// overall scale: 10 + 30 + 20 + 20 + 15 + 5.
type MetricsBreakdown struct {
	CorrectnessScore       int `json:"correctness_score" jsonschema:"minimum=0,maximum=10"`
	EscalationScore        int `json:"escalation_score" jsonschema:"minimum=0,maximum=30"`
	QuestionQualityScore   int `json:"question_quality_score" jsonschema:"minimum=0,maximum=20"`
	ProgressScore          int `json:"progress_score" jsonschema:"minimum=0,maximum=20"`
	ToneEncouragementScore int `json:"tone_encouragement_score" jsonschema:"minimum=0,maximum=15"`
	NoDeadEndScore         int `json:"no_dead_end_score" jsonschema:"minimum=0,maximum=5"`
}

// OnTopicRefusal describes one incorrect refusal of a legitimate question.
type OnTopicRefusal struct {
	Messages     []int  `json:"messages"`
	Evidence     string `json:"evidence"`
	WhyIncorrect string `json:"why_incorrect"`
}

// RefusalAssessment covers how the bot handled question refusals. Off-topic
// refusals are expected behavior; only on-topic refusals count against it.
type RefusalAssessment struct {
	OffTopicRefusalsCount    int              `json:"off_topic_refusals_count"`
	OnTopicRefusalsIncorrect []OnTopicRefusal `json:"on_topic_refusals_incorrect"`
}

// Judgment is the judge's structured verdict for one conversation. It is
// persisted verbatim as the cache entry and must stay independently
// re-loadable: no cross-file references except the conversation ID in the
// filename.
type Judgment struct {
	OverallScore      int               `json:"overall_score" jsonschema:"minimum=0,maximum=100"`
	OverallVerdict    Verdict           `json:"overall_verdict" jsonschema:"enum=PASS,enum=FAIL"`
	Summary           string            `json:"summary"`
	Metrics           MetricsBreakdown  `json:"metrics"`
	RefusalAssessment RefusalAssessment `json:"refusal_assessment"`
	Flags             []Flag            `json:"flags"`
	Positives         []PositiveNote    `json:"positives"`

	NextBestStep            string `json:"next_best_step"`
	SuggestedHandoffMessage string `json:"suggested_handoff_message,omitempty"`
	NotesForTraining        string `json:"notes_for_training"`

	PrizeCandidate bool   `json:"prize_candidate"`
	PrizeReason    string `json:"prize_reason,omitempty"`

	CyclesWithoutProgress int  `json:"cycles_without_progress" jsonschema:"minimum=0"`
	HasClearNextStep      bool `json:"has_clear_next_step"`
}

// Normalize fills safe defaults for optional fields a partially-filled payload
// may omit: nil flag/positive lists become empty and a missing verdict becomes
// VerdictUnknown. Called on every judgment entering the system, whether from
// the judge or from the cache.
func (j *Judgment) Normalize() {
	if j.OverallVerdict == "" {
		j.OverallVerdict = VerdictUnknown
	}
	if j.Flags == nil {
		j.Flags = []Flag{}
	}
	if j.Positives == nil {
		j.Positives = []PositiveNote{}
	}
	if j.RefusalAssessment.OnTopicRefusalsIncorrect == nil {
		j.RefusalAssessment.OnTopicRefusalsIncorrect = []OnTopicRefusal{}
	}
}

// Validate checks the judgment against the schema contract: bounded scores,
// closed enumerations, non-negative counters. A judge response that fails
// validation is treated as a judge failure and retried. Validate does not
// reject VerdictUnknown; that sentinel only arises via Normalize on payloads
// that omitted the verdict, which the cache accepts.
func (j *Judgment) Validate() error {
	if j.OverallScore < 0 || j.OverallScore > 100 {
		return fmt.Errorf("overall_score %d out of range [0,100]", j.OverallScore)
	}
	switch j.OverallVerdict {
	case VerdictPass, VerdictFail, VerdictUnknown:
	default:
		return fmt.Errorf("unknown overall_verdict %q", j.OverallVerdict)
	}
	if err := j.Metrics.validate(); err != nil {
		return err
	}
	if j.CyclesWithoutProgress < 0 {
		return fmt.Errorf("cycles_without_progress %d is negative", j.CyclesWithoutProgress)
	}
	if j.RefusalAssessment.OffTopicRefusalsCount < 0 {
		return fmt.Errorf("off_topic_refusals_count %d is negative", j.RefusalAssessment.OffTopicRefusalsCount)
	}
	for i, f := range j.Flags {
		if err := f.validate(); err != nil {
			return fmt.Errorf("flags[%d]: %w", i, err)
		}
	}
	return nil
}

func (m MetricsBreakdown) validate() error {
	checks := []struct {
		name string
		v    int
		max  int
	}{
		{"correctness_score", m.CorrectnessScore, 10},
		{"escalation_score", m.EscalationScore, 30},
		{"question_quality_score", m.QuestionQualityScore, 20},
		{"progress_score", m.ProgressScore, 20},
		{"tone_encouragement_score", m.ToneEncouragementScore, 15},
		{"no_dead_end_score", m.NoDeadEndScore, 5},
	}
	for _, c := range checks {
		if c.v < 0 || c.v > c.max {
			return fmt.Errorf("metrics.%s %d out of range [0,%d]", c.name, c.v, c.max)
		}
	}
	return nil
}

func (f Flag) validate() error {
	switch f.Type {
	case FlagObviousWrongAnswer, FlagMissedEscalation, FlagDumbQuestion,
		FlagRepetitive, FlagLackOfEncouragement, FlagDeadEnd:
	default:
		return fmt.Errorf("unknown flag type %q", f.Type)
	}
	switch f.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return fmt.Errorf("unknown severity %q", f.Severity)
	}
	switch f.Confidence {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
	default:
		return fmt.Errorf("unknown confidence %q", f.Confidence)
	}
	for _, idx := range f.Messages {
		if idx < 0 {
			return fmt.Errorf("negative message index %d", idx)
		}
	}
	return nil
}
