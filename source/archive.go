package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
	"github.com/AmiraLearning/amira-amirabot-analysis/analysis/fileutils"
)

// Archive persists each fetched conversation as its own JSON file so an
// interrupted fetch loses at most the page in flight, and an analysis run can
// start from disk without touching the API.
type Archive struct {
	dir    string
	logger *zap.Logger
}

// NewArchive creates dir if needed and returns the archive over it.
func NewArchive(dir string, logger *zap.Logger) (*Archive, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("source: archive dir is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{dir: dir, logger: logger}, nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

// Save writes one conversation atomically. A failed save is logged and
// reported but callers typically keep going; the API copy still exists.
func (a *Archive) Save(convo analysis.Conversation) error {
	if convo.ID == "" {
		return fmt.Errorf("archive save: conversation has no id")
	}
	path := filepath.Join(a.dir, convo.ID+".json")
	if err := fileutils.WriteJSONFileAtomic(path, convo, true); err != nil {
		a.logger.Warn("failed to archive conversation",
			zap.String("conversation_id", convo.ID),
			zap.Error(err))
		return err
	}
	return nil
}

// SaveAll archives every conversation, continuing past individual failures.
// It returns the number saved.
func (a *Archive) SaveAll(conversations []analysis.Conversation) int {
	saved := 0
	for _, convo := range conversations {
		if err := a.Save(convo); err == nil {
			saved++
		}
	}
	return saved
}

// Load returns the archived conversation, or ok=false when it is not
// archived or the file cannot be parsed.
func (a *Archive) Load(conversationID string) (analysis.Conversation, bool) {
	path := filepath.Join(a.dir, conversationID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return analysis.Conversation{}, false
	}
	var convo analysis.Conversation
	if err := json.Unmarshal(data, &convo); err != nil {
		a.logger.Warn("corrupt archived conversation",
			zap.String("path", path),
			zap.Error(err))
		return analysis.Conversation{}, false
	}
	return convo, true
}

// LoadAll reads every archived conversation, skipping corrupt files with a
// warning. Results are ordered by conversation ID for determinism. A missing
// archive directory yields an empty slice.
func (a *Archive) LoadAll() ([]analysis.Conversation, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var conversations []analysis.Conversation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(a.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			a.logger.Warn("failed to read archived conversation", zap.String("path", path), zap.Error(err))
			continue
		}
		var convo analysis.Conversation
		if err := json.Unmarshal(data, &convo); err != nil {
			a.logger.Warn("corrupt archived conversation", zap.String("path", path), zap.Error(err))
			continue
		}
		conversations = append(conversations, convo)
	}
	sort.Slice(conversations, func(i, j int) bool { return conversations[i].ID < conversations[j].ID })
	return conversations, nil
}
