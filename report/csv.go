package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
)

var issueColumns = []string{
	"conversation_id",
	"issue_type",
	"severity_score",
	"ai_reasoning",
	"excerpt",
	"details_message_count",
	"details_status",
	"details_rating",
	"details_overall_score",
	"details_overall_verdict",
	"details_messages_involved",
	"details_confidence",
	"details_recommended_fix",
}

// WriteIssuesCSV writes one row per issue across every category, sorted by
// severity descending then conversation ID ascending.
func WriteIssuesCSV(qa analysis.QualityAnalysis, path string) error {
	issues := qa.AllIssues()
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].SeverityScore != issues[j].SeverityScore {
			return issues[i].SeverityScore > issues[j].SeverityScore
		}
		return issues[i].ConversationID < issues[j].ConversationID
	})

	rows := make([][]string, 0, len(issues)+1)
	rows = append(rows, issueColumns)
	for _, issue := range issues {
		rows = append(rows, []string{
			issue.ConversationID,
			issue.IssueType,
			strconv.Itoa(issue.SeverityScore),
			issue.AIReasoning,
			issue.Excerpt,
			detailString(issue, analysis.DetailMessageCount),
			detailString(issue, analysis.DetailStatus),
			detailString(issue, analysis.DetailRating),
			detailString(issue, analysis.DetailOverallScore),
			detailString(issue, analysis.DetailOverallVerdict),
			detailString(issue, analysis.DetailMessagesInvolved),
			detailString(issue, analysis.DetailConfidence),
			detailString(issue, analysis.DetailRecommendedFix),
		})
	}
	return writeCSV(path, rows)
}

// WriteConversationAnalysesCSV flattens every judgment into one row, sorted
// by overall score ascending so the worst conversations surface first.
func WriteConversationAnalysesCSV(judgments map[string]analysis.Judgment, path string) error {
	rows := flattenAll(judgments)
	out := make([][]string, 0, len(rows)+1)
	out = append(out, analysisColumns)
	for _, row := range rows {
		rec := make([]string, len(analysisColumns))
		for i, col := range analysisColumns {
			rec[i] = row[col]
		}
		out = append(out, rec)
	}
	return writeCSV(path, out)
}

// fullColumns prepends the conversation-join columns to the flattened
// judgment layout. conversation_id already leads analysisColumns.
var fullJoinColumns = []string{
	"created_at",
	"normalized_date",
	"full_conversation_text",
	"message_count",
	"status",
	"rating",
}

// WriteConversationsFullCSV joins each judgment with its source conversation
// transcript. Judgments without a matching conversation still get a row with
// the join columns empty.
func WriteConversationsFullCSV(conversations []analysis.Conversation, judgments map[string]analysis.Judgment, path string) error {
	byID := make(map[string]analysis.Conversation, len(conversations))
	for _, convo := range conversations {
		byID[convo.ID] = convo
	}

	columns := make([]string, 0, 1+len(fullJoinColumns)+len(analysisColumns)-1)
	columns = append(columns, "conversation_id")
	columns = append(columns, fullJoinColumns...)
	columns = append(columns, analysisColumns[1:]...)

	rows := flattenAll(judgments)
	out := make([][]string, 0, len(rows)+1)
	out = append(out, columns)
	for _, row := range rows {
		id := row["conversation_id"]
		rec := make([]string, 0, len(columns))
		rec = append(rec, id)
		if convo, ok := byID[id]; ok {
			rating := ""
			if convo.Rating != nil {
				rating = strconv.Itoa(*convo.Rating)
			}
			rec = append(rec,
				convo.CreatedAt,
				convo.NormalizedDate(),
				FormatTranscript(convo),
				strconv.Itoa(len(convo.Messages)),
				convo.Status,
				rating,
			)
		} else {
			for range fullJoinColumns {
				rec = append(rec, "")
			}
		}
		for _, col := range analysisColumns[1:] {
			rec = append(rec, row[col])
		}
		out = append(out, rec)
	}
	return writeCSV(path, out)
}

// flattenAll flattens and sorts judgments by overall score ascending, with
// conversation ID as the tie-break.
func flattenAll(judgments map[string]analysis.Judgment) []map[string]string {
	rows := make([]map[string]string, 0, len(judgments))
	for id, j := range judgments {
		rows = append(rows, flattenJudgment(id, j))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		si, _ := strconv.Atoi(rows[i]["overall_score"])
		sj, _ := strconv.Atoi(rows[j]["overall_score"])
		if si != sj {
			return si < sj
		}
		return rows[i]["conversation_id"] < rows[j]["conversation_id"]
	})
	return rows
}

func detailString(issue analysis.Issue, key string) string {
	v, ok := issue.Details[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case []int:
		return mustJSON(t)
	default:
		return fmt.Sprint(t)
	}
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
