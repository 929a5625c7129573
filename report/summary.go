package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
)

// SummaryInput carries everything the markdown summary draws from.
type SummaryInput struct {
	Analysis  analysis.QualityAnalysis
	Judgments map[string]analysis.Judgment
	Model     string
}

// WriteSummaryMarkdown renders the run summary: verdict KPIs, per-category
// issue counts, the worst conversations, and prize candidates.
func WriteSummaryMarkdown(in SummaryInput, path string) error {
	var b strings.Builder

	b.WriteString("# Amirabot Conversation Quality Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	if in.Model != "" {
		fmt.Fprintf(&b, "Judge model: %s\n\n", in.Model)
	}

	writeKPIs(&b, in)
	writeCategoryCounts(&b, in.Analysis)
	writeWorstConversations(&b, in.Judgments, 10)
	writeTopOffenders(&b, in.Analysis)
	writePrizeCandidates(&b, in.Judgments, 10)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write summary report: %w", err)
	}
	return nil
}

func writeKPIs(b *strings.Builder, in SummaryInput) {
	total := len(in.Judgments)
	b.WriteString("## Key metrics\n\n")
	fmt.Fprintf(b, "- Conversations analyzed: %d\n", in.Analysis.TotalAnalyzed)
	fmt.Fprintf(b, "- Conversations judged this run: %d\n", total)

	if total == 0 {
		b.WriteString("\n")
		return
	}

	var pass, fail, unknown, scoreSum int
	for _, j := range in.Judgments {
		scoreSum += j.OverallScore
		switch j.OverallVerdict {
		case analysis.VerdictPass:
			pass++
		case analysis.VerdictFail:
			fail++
		default:
			unknown++
		}
	}
	fmt.Fprintf(b, "- Pass: %d (%.1f%%)\n", pass, 100*float64(pass)/float64(total))
	fmt.Fprintf(b, "- Fail: %d (%.1f%%)\n", fail, 100*float64(fail)/float64(total))
	if unknown > 0 {
		fmt.Fprintf(b, "- Unknown verdict: %d\n", unknown)
	}
	fmt.Fprintf(b, "- Average score: %.1f/100\n", float64(scoreSum)/float64(total))
	if s := in.Analysis.Summary; s != nil {
		fmt.Fprintf(b, "- Conversations with issues: %d\n", s.ConversationsWithIssues)
		fmt.Fprintf(b, "- Total issues found: %d\n", s.TotalIssuesFound)
		fmt.Fprintf(b, "- Average issue severity: %.1f/10\n", s.AverageSeverity)
	}
	b.WriteString("\n")
}

func writeCategoryCounts(b *strings.Builder, qa analysis.QualityAnalysis) {
	b.WriteString("## Issues by category\n\n")
	any := false
	for _, c := range qa.Categories() {
		if len(c.Issues) == 0 {
			continue
		}
		any = true
		fmt.Fprintf(b, "- %s: %d\n", c.Name, len(c.Issues))
	}
	if !any {
		b.WriteString("No issues found.\n")
	}
	b.WriteString("\n")
}

func writeWorstConversations(b *strings.Builder, judgments map[string]analysis.Judgment, limit int) {
	type scored struct {
		id string
		j  analysis.Judgment
	}
	rows := make([]scored, 0, len(judgments))
	for id, j := range judgments {
		rows = append(rows, scored{id: id, j: j})
	}
	sort.Slice(rows, func(i, k int) bool {
		if rows[i].j.OverallScore != rows[k].j.OverallScore {
			return rows[i].j.OverallScore < rows[k].j.OverallScore
		}
		return rows[i].id < rows[k].id
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	b.WriteString("## Lowest-scoring conversations\n\n")
	if len(rows) == 0 {
		b.WriteString("No judged conversations.\n\n")
		return
	}
	for i, row := range rows {
		fmt.Fprintf(b, "%d. `%s` — %d/100 (%s)\n", i+1, row.id, row.j.OverallScore, row.j.OverallVerdict)
		if row.j.Summary != "" {
			fmt.Fprintf(b, "   - %s\n", row.j.Summary)
		}
		if row.j.NextBestStep != "" {
			fmt.Fprintf(b, "   - Next best step: %s\n", row.j.NextBestStep)
		}
	}
	b.WriteString("\n")
}

func writeTopOffenders(b *strings.Builder, qa analysis.QualityAnalysis) {
	if len(qa.TopOffenders) == 0 {
		return
	}
	b.WriteString("## Top offenders\n\n")
	for i, issue := range qa.TopOffenders {
		fmt.Fprintf(b, "%d. `%s` — %s (severity %d)\n", i+1, issue.ConversationID, issue.IssueType, issue.SeverityScore)
	}
	b.WriteString("\n")
}

func writePrizeCandidates(b *strings.Builder, judgments map[string]analysis.Judgment, limit int) {
	type candidate struct {
		id string
		j  analysis.Judgment
	}
	var rows []candidate
	for id, j := range judgments {
		if j.PrizeCandidate {
			rows = append(rows, candidate{id: id, j: j})
		}
	}
	if len(rows) == 0 {
		return
	}
	sort.Slice(rows, func(i, k int) bool {
		if rows[i].j.OverallScore != rows[k].j.OverallScore {
			return rows[i].j.OverallScore < rows[k].j.OverallScore
		}
		return rows[i].id < rows[k].id
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	b.WriteString("## Prize candidates\n\n")
	b.WriteString("Users whose experience was bad enough to warrant a goodwill gesture.\n\n")
	for i, row := range rows {
		fmt.Fprintf(b, "%d. `%s` — %d/100\n", i+1, row.id, row.j.OverallScore)
		if row.j.PrizeReason != "" {
			fmt.Fprintf(b, "   - %s\n", row.j.PrizeReason)
		}
	}
	b.WriteString("\n")
}
