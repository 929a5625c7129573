package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
)

const createConversationsTableSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	rating INTEGER,
	message_count INTEGER NOT NULL,
	messages_json TEXT NOT NULL,
	fetched_at_utc TEXT NOT NULL
)`

var createConversationsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status)`,
}

const upsertConversationSQL = `
INSERT INTO conversations (
	conversation_id,
	created_at,
	status,
	rating,
	message_count,
	messages_json,
	fetched_at_utc
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
	created_at = excluded.created_at,
	status = excluded.status,
	rating = excluded.rating,
	message_count = excluded.message_count,
	messages_json = excluded.messages_json,
	fetched_at_utc = excluded.fetched_at_utc`

const selectConversationsSQL = `
SELECT conversation_id, created_at, status, rating, messages_json
FROM conversations
ORDER BY conversation_id`

// Store is a durable SQLite mirror of fetched conversations. Unlike the JSON
// Archive it supports upserts across runs, so re-fetching a window refreshes
// rows in place.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database at path and ensures the
// schema exists.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("source: store path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(createConversationsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create conversations table: %w", err)
	}
	for _, stmt := range createConversationsIndexesSQL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create conversations index: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Upsert writes conversations in a single transaction.
func (s *Store) Upsert(ctx context.Context, conversations []analysis.Conversation) error {
	if len(conversations) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertConversationSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, convo := range conversations {
		messagesJSON, err := json.Marshal(convo.Messages)
		if err != nil {
			return fmt.Errorf("marshal messages for %s: %w", convo.ID, err)
		}
		var rating any
		if convo.Rating != nil {
			rating = *convo.Rating
		}
		if _, err := stmt.ExecContext(ctx,
			convo.ID,
			convo.CreatedAt,
			convo.Status,
			rating,
			len(convo.Messages),
			string(messagesJSON),
			now,
		); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", convo.ID, err)
		}
	}
	return tx.Commit()
}

// LoadAll returns every stored conversation ordered by ID.
func (s *Store) LoadAll(ctx context.Context) ([]analysis.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, selectConversationsSQL)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []analysis.Conversation
	for rows.Next() {
		var (
			convo        analysis.Conversation
			rating       sql.NullInt64
			messagesJSON string
		)
		if err := rows.Scan(&convo.ID, &convo.CreatedAt, &convo.Status, &rating, &messagesJSON); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if rating.Valid {
			v := int(rating.Int64)
			convo.Rating = &v
		}
		if err := json.Unmarshal([]byte(messagesJSON), &convo.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages for %s: %w", convo.ID, err)
		}
		conversations = append(conversations, convo)
	}
	return conversations, rows.Err()
}

// Count returns the number of stored conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

// LoadCached returns previously fetched conversations without touching the
// API. The SQLite mirror wins when storePath names an existing database with
// rows; otherwise the per-conversation JSON archive is read. An empty cache
// yields an empty slice, not an error.
func LoadCached(ctx context.Context, storePath string, archive *Archive, logger *zap.Logger) ([]analysis.Conversation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storePath != "" {
		if _, err := os.Stat(storePath); err == nil {
			store, err := OpenStore(storePath)
			if err != nil {
				return nil, err
			}
			defer store.Close()
			conversations, err := store.LoadAll(ctx)
			if err != nil {
				return nil, err
			}
			if len(conversations) > 0 {
				logger.Info("loaded conversations from sqlite mirror",
					zap.String("path", storePath),
					zap.Int("count", len(conversations)))
				return conversations, nil
			}
		}
	}
	if archive == nil {
		return nil, nil
	}
	return archive.LoadAll()
}
