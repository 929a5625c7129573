package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
)

// FormatTranscript renders a conversation as readable text, one turn per
// paragraph with the role upper-cased and the timestamp prefixed when it
// parses.
func FormatTranscript(convo analysis.Conversation) string {
	parts := make([]string, 0, len(convo.Messages))
	for _, msg := range convo.Messages {
		role := strings.ToUpper(msg.Role)
		if role == "" {
			role = "UNKNOWN"
		}
		if ts := formatTimestamp(msg.Timestamp); ts != "" {
			parts = append(parts, fmt.Sprintf("%s - %s: %s", ts, role, msg.Content))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", role, msg.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}

// formatTimestamp accepts RFC 3339 or epoch milliseconds; anything else is
// returned as-is.
func formatTimestamp(raw string) string {
	if raw == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format("2006-01-02 15:04:05")
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
	}
	return raw
}
