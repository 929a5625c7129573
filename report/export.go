package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
	"github.com/AmiraLearning/amira-amirabot-analysis/analysis/fileutils"
)

// RunManifest records what produced a set of report artifacts.
type RunManifest struct {
	RunID         string   `json:"run_id"`
	GeneratedAt   string   `json:"generated_at"`
	Model         string   `json:"model,omitempty"`
	TotalAnalyzed int      `json:"total_analyzed"`
	TotalIssues   int      `json:"total_issues"`
	Artifacts     []string `json:"artifacts"`
}

// NewRunManifest stamps a fresh run ID and generation time.
func NewRunManifest(model string, qa analysis.QualityAnalysis, artifacts []string) RunManifest {
	return RunManifest{
		RunID:         uuid.NewString(),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Model:         model,
		TotalAnalyzed: qa.TotalAnalyzed,
		TotalIssues:   len(qa.AllIssues()),
		Artifacts:     artifacts,
	}
}

// WriteIssuesJSON writes the category-bucketed analysis as pretty JSON.
func WriteIssuesJSON(qa analysis.QualityAnalysis, path string) error {
	if err := fileutils.WriteJSONFileAtomic(path, qa, true); err != nil {
		return fmt.Errorf("write issues json: %w", err)
	}
	return nil
}

// WriteConversationsJSON writes the fetched conversations as one pretty JSON
// array.
func WriteConversationsJSON(conversations []analysis.Conversation, path string) error {
	if err := fileutils.WriteJSONFileAtomic(path, conversations, true); err != nil {
		return fmt.Errorf("write conversations json: %w", err)
	}
	return nil
}

// WriteManifest writes the run manifest next to the other artifacts.
func WriteManifest(m RunManifest, path string) error {
	if err := fileutils.WriteJSONFileAtomic(path, m, true); err != nil {
		return fmt.Errorf("write run manifest: %w", err)
	}
	return nil
}
