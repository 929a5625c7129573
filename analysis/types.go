// Package analysis scores support-chatbot conversations with an LLM judge and
// aggregates the judgments into per-category issue collections for triage.
package analysis

import (
	"encoding/json"
	"time"
)

// Message roles as they appear in normalized conversations.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation. Owned by its Conversation.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Conversation is one support chat session. Immutable once fetched; message
// order is chronological and the zero-based message index is what judgments
// reference.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt string    `json:"created_at"`
	Status    string    `json:"status,omitempty"`
	Rating    *int      `json:"rating,omitempty"`
}

// NormalizedDate returns the created-at date as YYYY-MM-DD. Created-at may be
// an RFC 3339 timestamp or epoch milliseconds; unparseable values are returned
// as-is.
func (c Conversation) NormalizedDate() string {
	if c.CreatedAt == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, c.CreatedAt); err == nil {
		return t.Format("2006-01-02")
	}
	var ms int64
	if err := json.Unmarshal([]byte(c.CreatedAt), &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC().Format("2006-01-02")
	}
	return c.CreatedAt
}

// Issue types used for category bucketing in QualityAnalysis. Values produced
// by converting judgment flags; IssueTypeUnhelpful is the catch-all for flag
// types this version does not recognize.
const (
	IssueTypeRepetitive          = "repetitive"
	IssueTypeUnhelpful           = "unhelpful"
	IssueTypeTooManyTurns        = "too_many_turns"
	IssueTypeDeadEnd             = "dead_end"
	IssueTypeNegativeRating      = "negative_rating"
	IssueTypeObviousWrongAnswer  = "obvious_wrong_answer"
	IssueTypeMissedEscalation    = "missed_escalation"
	IssueTypeDumbQuestion        = "dumb_question"
	IssueTypeLackOfEncouragement = "lack_of_encouragement"
)

// Detail keys stored in Issue.Details.
const (
	DetailMessageCount     = "message_count"
	DetailStatus           = "status"
	DetailRating           = "rating"
	DetailOverallScore     = "overall_score"
	DetailOverallVerdict   = "overall_verdict"
	DetailMessagesInvolved = "messages_involved"
	DetailConfidence       = "confidence"
	DetailRecommendedFix   = "recommended_fix"
)

// Issue is the reporting-facing projection of one judgment flag. Never mutated
// after creation.
type Issue struct {
	ConversationID string         `json:"conversation_id"`
	IssueType      string         `json:"issue_type"`
	Details        map[string]any `json:"details"`
	SeverityScore  int            `json:"severity_score"`
	AIReasoning    string         `json:"ai_reasoning,omitempty"`
	Excerpt        string         `json:"excerpt,omitempty"`
}

// SummaryStats are cross-category statistics over all scored issues.
type SummaryStats struct {
	ConversationsWithIssues int     `json:"conversations_with_issues"`
	AverageSeverity         float64 `json:"average_severity"`
	TotalIssuesFound        int     `json:"total_issues_found"`
}

// QualityAnalysis is the terminal aggregate: total conversation count plus one
// severity-descending issue list per category. Every issue appears in exactly
// one category, determined by its flag type at creation time.
type QualityAnalysis struct {
	TotalAnalyzed       int     `json:"total_analyzed"`
	Repetitive          []Issue `json:"repetitive"`
	Unhelpful           []Issue `json:"unhelpful"`
	TooManyTurns        []Issue `json:"too_many_turns"`
	DeadEnd             []Issue `json:"dead_end"`
	NegativeRating      []Issue `json:"negative_rating"`
	ObviousWrongAnswers []Issue `json:"obvious_wrong_answers"`
	MissedEscalation    []Issue `json:"missed_escalation"`
	DumbQuestions       []Issue `json:"dumb_questions"`
	LackOfEncouragement []Issue `json:"lack_of_encouragement"`

	Summary      *SummaryStats `json:"summary,omitempty"`
	TopOffenders []Issue       `json:"top_offenders,omitempty"`
}

// Categories returns the category name -> bucket mapping in a fixed order.
func (qa *QualityAnalysis) Categories() []CategoryBucket {
	return []CategoryBucket{
		{Name: "repetitive", Issues: qa.Repetitive},
		{Name: "unhelpful", Issues: qa.Unhelpful},
		{Name: "too_many_turns", Issues: qa.TooManyTurns},
		{Name: "dead_end", Issues: qa.DeadEnd},
		{Name: "negative_rating", Issues: qa.NegativeRating},
		{Name: "obvious_wrong_answers", Issues: qa.ObviousWrongAnswers},
		{Name: "missed_escalation", Issues: qa.MissedEscalation},
		{Name: "dumb_questions", Issues: qa.DumbQuestions},
		{Name: "lack_of_encouragement", Issues: qa.LackOfEncouragement},
	}
}

// CategoryBucket pairs a category name with its sorted issues.
type CategoryBucket struct {
	Name   string
	Issues []Issue
}

// AllIssues flattens every category bucket in fixed category order.
func (qa *QualityAnalysis) AllIssues() []Issue {
	var all []Issue
	for _, c := range qa.Categories() {
		all = append(all, c.Issues...)
	}
	return all
}
