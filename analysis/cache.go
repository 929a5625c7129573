package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis/fileutils"
)

// ResultCache persists one judgment JSON per conversation ID under a storage
// root. Writes are atomic; a concurrent Get never observes a partially written
// record. Each record is self-contained and independently re-loadable, so a
// crashed batch can resume from whatever was persisted.
type ResultCache struct {
	dir         string
	bypassReads bool
	logger      *zap.Logger
}

// NewResultCache creates the storage root if needed. With bypassReads set,
// Get always misses but Put still writes, so a bypass run refreshes the cache.
func NewResultCache(dir string, bypassReads bool, logger *zap.Logger) (*ResultCache, error) {
	if dir == "" {
		return nil, errors.New("result cache: empty storage root")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("result cache: mkdir %s: %w", dir, err)
	}
	return &ResultCache{dir: dir, bypassReads: bypassReads, logger: logger}, nil
}

// Dir returns the storage root.
func (c *ResultCache) Dir() string {
	return c.dir
}

func (c *ResultCache) path(conversationID string) string {
	return filepath.Join(c.dir, conversationID+".json")
}

// Get loads the cached judgment for a conversation. Absence is a normal miss.
// A corrupt record is logged at warning level and treated as a miss, never as
// an error: the caller falls through to re-invoking the judge.
func (c *ResultCache) Get(conversationID string) (Judgment, bool) {
	if c.bypassReads {
		return Judgment{}, false
	}

	b, err := os.ReadFile(c.path(conversationID))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("failed to read cached judgment",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
		}
		return Judgment{}, false
	}

	var j Judgment
	if err := json.Unmarshal(b, &j); err != nil {
		c.logger.Warn("corrupt cached judgment, treating as miss",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return Judgment{}, false
	}
	j.Normalize()
	return j, true
}

// Put persists the judgment for a conversation. One task owns one conversation
// ID, so no two tasks ever write the same record concurrently.
func (c *ResultCache) Put(conversationID string, j Judgment) error {
	if err := fileutils.WriteJSONFileAtomic(c.path(conversationID), j, true); err != nil {
		return fmt.Errorf("persist judgment %s: %w", conversationID, err)
	}
	return nil
}

// LoadAll reads every persisted judgment, keyed by conversation ID (the file
// stem). Corrupt records are logged and skipped. A missing storage root yields
// an empty map: reporting on an empty archive is not an error.
func (c *ResultCache) LoadAll() (map[string]Judgment, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Judgment{}, nil
		}
		return nil, fmt.Errorf("read cache dir %s: %w", c.dir, err)
	}

	out := make(map[string]Judgment, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		b, err := os.ReadFile(filepath.Join(c.dir, name))
		if err != nil {
			c.logger.Warn("failed to read judgment file", zap.String("file", name), zap.Error(err))
			continue
		}
		var j Judgment
		if err := json.Unmarshal(b, &j); err != nil {
			c.logger.Warn("skipping corrupt judgment file", zap.String("file", name), zap.Error(err))
			continue
		}
		j.Normalize()
		out[id] = j
	}
	return out, nil
}

// ConversationIDs lists the IDs with a persisted judgment, sorted.
func (c *ResultCache) ConversationIDs() ([]string, error) {
	all, err := c.LoadAll()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
