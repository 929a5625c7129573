// Package source fetches support conversations from the Amirabot API and
// archives them locally so later analysis runs can work offline.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
)

const (
	conversationListEndpoint = "/conversation/list"

	// DefaultPageLimit is the number of conversations requested per page.
	DefaultPageLimit = 100
	// DefaultMaxPages bounds a fetch run when the caller does not override it.
	DefaultMaxPages = 5
	// DefaultSortBy orders results newest-first by creation time.
	DefaultSortBy = "createdAt"
)

// FetchOptions controls one paginated fetch run.
type FetchOptions struct {
	IncludeMessages bool
	PageLimit       int
	SortBy          string
	SortDesc        bool
	MaxPages        int
}

// DefaultFetchOptions returns the options a plain fetch run uses.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		IncludeMessages: true,
		PageLimit:       DefaultPageLimit,
		SortBy:          DefaultSortBy,
		SortDesc:        true,
		MaxPages:        DefaultMaxPages,
	}
}

// Client pages through the conversation list endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a fetcher for the given API base URL.
func NewClient(baseURL string, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("source: base URL is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

type listRequest struct {
	Filter          map[string]any `json:"filter"`
	Limit           int            `json:"limit"`
	SortBy          string         `json:"sort_by"`
	SortDir         string         `json:"sort_dir"`
	IncludeMessages bool           `json:"include_messages"`
	PageToken       string         `json:"page_token,omitempty"`
}

type listResponse struct {
	FilteredConvos []conversationRecord `json:"filtered_convos"`
	NextPageToken  string               `json:"next_page_token"`
}

// conversationRecord is the wire shape of one conversation. The messages
// field arrives either as a JSON array or as a JSON-encoded string, and
// rating may be a number or a numeric string.
type conversationRecord struct {
	PK        string          `json:"PK"`
	CreatedAt string          `json:"createdAt"`
	Status    string          `json:"convo_status"`
	Rating    json.RawMessage `json:"rating"`
	Messages  json.RawMessage `json:"messages"`
}

type messageRecord struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// FetchAll walks pages until the API stops returning a page token, a page
// comes back empty, or opt.MaxPages is reached.
func (c *Client) FetchAll(ctx context.Context, opt FetchOptions) ([]analysis.Conversation, error) {
	if opt.PageLimit <= 0 {
		opt.PageLimit = DefaultPageLimit
	}
	if opt.SortBy == "" {
		opt.SortBy = DefaultSortBy
	}
	if opt.MaxPages <= 0 {
		opt.MaxPages = DefaultMaxPages
	}
	sortDir := "asc"
	if opt.SortDesc {
		sortDir = "desc"
	}

	var all []analysis.Conversation
	pageToken := ""
	for page := 1; page <= opt.MaxPages; page++ {
		req := listRequest{
			Filter:          map[string]any{},
			Limit:           opt.PageLimit,
			SortBy:          opt.SortBy,
			SortDir:         sortDir,
			IncludeMessages: opt.IncludeMessages,
			PageToken:       pageToken,
		}
		resp, err := c.listPage(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		for _, rec := range resp.FilteredConvos {
			all = append(all, rec.toConversation())
		}
		c.logger.Info("fetched conversation page",
			zap.Int("page", page),
			zap.Int("page_size", len(resp.FilteredConvos)),
			zap.Int("total", len(all)))

		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.FilteredConvos) == 0 {
			break
		}
	}
	return all, nil
}

func (c *Client) listPage(ctx context.Context, payload listRequest) (listResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return listResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+conversationListEndpoint, bytes.NewReader(body))
	if err != nil {
		return listResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return listResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return listResponse{}, fmt.Errorf("conversation list: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return listResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (r conversationRecord) toConversation() analysis.Conversation {
	return analysis.Conversation{
		ID:        r.PK,
		Messages:  decodeMessages(r.Messages),
		CreatedAt: r.CreatedAt,
		Status:    r.Status,
		Rating:    decodeRating(r.Rating),
	}
}

// decodeMessages accepts a JSON array of message objects or the same array
// double-encoded as a JSON string. Anything unparseable yields no messages.
func decodeMessages(raw json.RawMessage) []analysis.Message {
	if len(raw) == 0 {
		return nil
	}
	data := raw
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		data = json.RawMessage(asString)
	}
	var recs []messageRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil
	}
	msgs := make([]analysis.Message, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, analysis.Message{
			Role:      rec.Sender,
			Content:   rec.Message,
			Timestamp: rec.Timestamp,
		})
	}
	return msgs
}

// decodeRating accepts a JSON number or a numeric string; everything else
// (including absent and null) maps to no rating.
func decodeRating(raw json.RawMessage) *int {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			return &v
		}
	}
	return nil
}
