// Package report turns judgments and issue collections into the artifacts
// reviewers actually open: issues JSON/CSV, flattened per-conversation CSVs,
// and a markdown summary.
package report

import (
	"encoding/json"
	"strconv"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
)

// analysisColumns is the column order for flattened judgment rows. The
// conversation-join columns used by the full export are prepended separately.
var analysisColumns = []string{
	"conversation_id",
	"overall_score",
	"overall_verdict",
	"summary",
	"next_best_step",
	"suggested_handoff_message",
	"notes_for_training",
	"prize_candidate",
	"prize_reason",
	"cycles_without_progress",
	"has_clear_next_step",
	"metrics_correctness_score",
	"metrics_escalation_score",
	"metrics_question_quality_score",
	"metrics_progress_score",
	"metrics_tone_encouragement_score",
	"metrics_no_dead_end_score",
	"refusal_off_topic_count",
	"refusal_on_topic_incorrect_count",
	"refusal_on_topic_incorrect_json",
	"flags_count",
	"flags_json",
	"flags_obvious_wrong_answer",
	"flags_missed_escalation",
	"flags_dumb_question",
	"flags_repetitive",
	"flags_lack_of_encouragement",
	"flags_dead_end",
	"positives_count",
	"positives_json",
	"positives_fast_obvious_answer",
	"positives_clear_escalation",
	"positives_empathetic_tone",
	"positives_good_constraints_use",
	"positives_concise_steps",
}

// flattenJudgment projects one judgment onto the analysisColumns layout.
func flattenJudgment(conversationID string, j analysis.Judgment) map[string]string {
	j.Normalize()

	flagCounts := map[analysis.FlagType]int{}
	for _, f := range j.Flags {
		flagCounts[f.Type]++
	}
	positiveCounts := map[string]int{}
	for _, p := range j.Positives {
		positiveCounts[p.Behavior]++
	}

	return map[string]string{
		"conversation_id":                  conversationID,
		"overall_score":                    strconv.Itoa(j.OverallScore),
		"overall_verdict":                  string(j.OverallVerdict),
		"summary":                          j.Summary,
		"next_best_step":                   j.NextBestStep,
		"suggested_handoff_message":        j.SuggestedHandoffMessage,
		"notes_for_training":               j.NotesForTraining,
		"prize_candidate":                  strconv.FormatBool(j.PrizeCandidate),
		"prize_reason":                     j.PrizeReason,
		"cycles_without_progress":          strconv.Itoa(j.CyclesWithoutProgress),
		"has_clear_next_step":              strconv.FormatBool(j.HasClearNextStep),
		"metrics_correctness_score":        strconv.Itoa(j.Metrics.CorrectnessScore),
		"metrics_escalation_score":         strconv.Itoa(j.Metrics.EscalationScore),
		"metrics_question_quality_score":   strconv.Itoa(j.Metrics.QuestionQualityScore),
		"metrics_progress_score":           strconv.Itoa(j.Metrics.ProgressScore),
		"metrics_tone_encouragement_score": strconv.Itoa(j.Metrics.ToneEncouragementScore),
		"metrics_no_dead_end_score":        strconv.Itoa(j.Metrics.NoDeadEndScore),
		"refusal_off_topic_count":          strconv.Itoa(j.RefusalAssessment.OffTopicRefusalsCount),
		"refusal_on_topic_incorrect_count": strconv.Itoa(len(j.RefusalAssessment.OnTopicRefusalsIncorrect)),
		"refusal_on_topic_incorrect_json":  mustJSON(j.RefusalAssessment.OnTopicRefusalsIncorrect),
		"flags_count":                      strconv.Itoa(len(j.Flags)),
		"flags_json":                       mustJSON(j.Flags),
		"flags_obvious_wrong_answer":       strconv.Itoa(flagCounts[analysis.FlagObviousWrongAnswer]),
		"flags_missed_escalation":          strconv.Itoa(flagCounts[analysis.FlagMissedEscalation]),
		"flags_dumb_question":              strconv.Itoa(flagCounts[analysis.FlagDumbQuestion]),
		"flags_repetitive":                 strconv.Itoa(flagCounts[analysis.FlagRepetitive]),
		"flags_lack_of_encouragement":      strconv.Itoa(flagCounts[analysis.FlagLackOfEncouragement]),
		"flags_dead_end":                   strconv.Itoa(flagCounts[analysis.FlagDeadEnd]),
		"positives_count":                  strconv.Itoa(len(j.Positives)),
		"positives_json":                   mustJSON(j.Positives),
		"positives_fast_obvious_answer":    strconv.Itoa(positiveCounts[analysis.PositiveFastObviousAnswer]),
		"positives_clear_escalation":       strconv.Itoa(positiveCounts[analysis.PositiveClearEscalation]),
		"positives_empathetic_tone":        strconv.Itoa(positiveCounts[analysis.PositiveEmpatheticTone]),
		"positives_good_constraints_use":   strconv.Itoa(positiveCounts[analysis.PositiveGoodConstraintsUse]),
		"positives_concise_steps":          strconv.Itoa(positiveCounts[analysis.PositiveConciseSteps]),
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
