package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeJudge scripts per-conversation behavior and records call counts and
// concurrency.
type fakeJudge struct {
	mu         sync.Mutex
	calls      map[string]int
	inFlight   int
	maxSeen    int
	judgeDelay time.Duration

	// respond maps conversation ID to a scripted response. Missing IDs get a
	// passing judgment with one low-severity flag.
	respond map[string]func(call int) (Judgment, error)
}

func newFakeJudge() *fakeJudge {
	return &fakeJudge{
		calls:   map[string]int{},
		respond: map[string]func(int) (Judgment, error){},
	}
}

func passingJudgment(flags ...Flag) Judgment {
	j := validJudgment()
	j.Flags = flags
	j.Normalize()
	return j
}

func (f *fakeJudge) Invoke(ctx context.Context, convo Conversation, prompt string) (Judgment, error) {
	f.mu.Lock()
	f.calls[convo.ID]++
	call := f.calls[convo.ID]
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	fn := f.respond[convo.ID]
	delay := f.judgeDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if fn != nil {
		return fn(call)
	}
	return passingJudgment(), nil
}

func (f *fakeJudge) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func conversationsN(n int) []Conversation {
	out := make([]Conversation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Conversation{
			ID:       fmt.Sprintf("c%02d", i),
			Messages: []Message{{Role: RoleUser, Content: "help"}},
		})
	}
	return out
}

func newTestAnalyzer(t *testing.T, judge Judge, bypass bool, opts AnalyzerOptions) (*Analyzer, *ResultCache) {
	t.Helper()
	cache, err := NewResultCache(filepath.Join(t.TempDir(), "analyses"), bypass, zap.NewNop())
	if err != nil {
		t.Fatalf("NewResultCache: %v", err)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	}
	return NewAnalyzer(judge, cache, opts), cache
}

func TestAnalyze_EmptyInput(t *testing.T) {
	t.Parallel()

	analyzer, _ := newTestAnalyzer(t, newFakeJudge(), false, AnalyzerOptions{})
	qa, err := analyzer.Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if qa.TotalAnalyzed != 0 {
		t.Fatalf("TotalAnalyzed=%d, want 0", qa.TotalAnalyzed)
	}
	if qa.Summary != nil {
		t.Fatalf("Summary=%+v, want nil for empty input", qa.Summary)
	}
	// Buckets must exist even with nothing analyzed.
	if qa.DeadEnd == nil || qa.Unhelpful == nil {
		t.Fatalf("buckets not initialized: %+v", qa)
	}
}

func TestAnalyze_CacheHitSkipsJudge(t *testing.T) {
	t.Parallel()

	judge := newFakeJudge()
	analyzer, cache := newTestAnalyzer(t, judge, false, AnalyzerOptions{})

	cached := passingJudgment(Flag{
		Type: FlagRepetitive, Severity: SeverityMedium, Confidence: ConfidenceHigh,
	})
	if err := cache.Put("c00", cached); err != nil {
		t.Fatalf("Put: %v", err)
	}

	qa, err := analyzer.Analyze(context.Background(), conversationsN(1))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if judge.callCount("c00") != 0 {
		t.Fatalf("judge invoked %d times for cached conversation", judge.callCount("c00"))
	}
	if len(qa.Repetitive) != 1 {
		t.Fatalf("Repetitive=%d issues, want 1", len(qa.Repetitive))
	}
}

func TestAnalyze_BypassCacheStillPersists(t *testing.T) {
	t.Parallel()

	judge := newFakeJudge()
	analyzer, cache := newTestAnalyzer(t, judge, true, AnalyzerOptions{})

	if err := cache.Put("c00", passingJudgment()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := analyzer.Analyze(context.Background(), conversationsN(1)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if judge.callCount("c00") != 1 {
		t.Fatalf("judge invoked %d times under bypass, want 1", judge.callCount("c00"))
	}
	// Fresh judgment must have overwritten the cache file.
	if _, err := os.Stat(filepath.Join(cache.Dir(), "c00.json")); err != nil {
		t.Fatalf("judgment not persisted: %v", err)
	}
}

func TestAnalyze_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	judge := newFakeJudge()
	judge.judgeDelay = 10 * time.Millisecond
	analyzer, _ := newTestAnalyzer(t, judge, false, AnalyzerOptions{MaxConcurrency: 2})

	if _, err := analyzer.Analyze(context.Background(), conversationsN(10)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if judge.maxSeen > 2 {
		t.Fatalf("max in-flight judge calls=%d, want <= 2", judge.maxSeen)
	}
}

func TestAnalyze_FailureIsolation(t *testing.T) {
	t.Parallel()

	judge := newFakeJudge()
	judge.respond["c01"] = func(int) (Judgment, error) {
		return Judgment{}, errors.New("permanent transport failure")
	}
	analyzer, _ := newTestAnalyzer(t, judge, false, AnalyzerOptions{})

	qa, err := analyzer.Analyze(context.Background(), conversationsN(3))
	if err != nil {
		t.Fatalf("Analyze returned batch error for one failed conversation: %v", err)
	}
	if qa.TotalAnalyzed != 3 {
		t.Fatalf("TotalAnalyzed=%d, want 3", qa.TotalAnalyzed)
	}
	for _, issue := range qa.AllIssues() {
		if issue.ConversationID == "c01" {
			t.Fatalf("failed conversation contributed an issue: %+v", issue)
		}
	}
	// Retries exhausted: MaxAttempts=2 from the test default.
	if judge.callCount("c01") != 2 {
		t.Fatalf("failed conversation judged %d times, want 2", judge.callCount("c01"))
	}
}

func TestAnalyze_SchemaValidationFailureIsRetried(t *testing.T) {
	t.Parallel()

	judge := newFakeJudge()
	judge.respond["c00"] = func(call int) (Judgment, error) {
		if call == 1 {
			bad := validJudgment()
			bad.OverallScore = 400
			return bad, nil
		}
		return passingJudgment(Flag{
			Type: FlagDeadEnd, Severity: SeverityHigh, Confidence: ConfidenceHigh,
		}), nil
	}
	analyzer, _ := newTestAnalyzer(t, judge, false, AnalyzerOptions{})

	qa, err := analyzer.Analyze(context.Background(), conversationsN(1))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if judge.callCount("c00") != 2 {
		t.Fatalf("judge invoked %d times, want 2 (invalid then valid)", judge.callCount("c00"))
	}
	if len(qa.DeadEnd) != 1 {
		t.Fatalf("DeadEnd=%d issues, want 1 from the valid retry", len(qa.DeadEnd))
	}
}

func TestAnalyze_JudgmentPersistedBeforeConversion(t *testing.T) {
	t.Parallel()

	judge := newFakeJudge()
	analyzer, cache := newTestAnalyzer(t, judge, false, AnalyzerOptions{})

	if _, err := analyzer.Analyze(context.Background(), conversationsN(2)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	all, err := cache.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("persisted %d judgments, want 2", len(all))
	}
}

func TestIssuesFromJudgment_DetailsAndSeverity(t *testing.T) {
	t.Parallel()

	rating := 1
	convo := Conversation{
		ID:     "c1",
		Status: "closed",
		Rating: &rating,
		Messages: []Message{
			{Role: RoleUser, Content: "a"},
			{Role: RoleAssistant, Content: "b"},
		},
	}
	j := passingJudgment(Flag{
		Type:           FlagMissedEscalation,
		Severity:       SeverityHigh,
		Confidence:     ConfidenceMedium,
		Messages:       []int{1},
		Evidence:       "user asked for a human twice",
		WhyItMatters:   "user explicitly requested escalation",
		RecommendedFix: "hand off on first request",
	})
	j.OverallVerdict = VerdictFail
	j.OverallScore = 20

	issues := IssuesFromJudgment(convo, j)
	if len(issues) != 1 {
		t.Fatalf("issues=%d, want 1", len(issues))
	}
	issue := issues[0]
	if issue.IssueType != IssueTypeMissedEscalation {
		t.Fatalf("IssueType=%q", issue.IssueType)
	}
	if issue.SeverityScore != 9 {
		t.Fatalf("SeverityScore=%d, want 9 for high", issue.SeverityScore)
	}
	if issue.Details[DetailMessageCount] != 2 {
		t.Fatalf("message_count=%v, want 2", issue.Details[DetailMessageCount])
	}
	if issue.Details[DetailRating] != 1 {
		t.Fatalf("rating=%v, want 1", issue.Details[DetailRating])
	}
	if issue.Details[DetailOverallVerdict] != "FAIL" {
		t.Fatalf("overall_verdict=%v, want FAIL", issue.Details[DetailOverallVerdict])
	}
	if issue.AIReasoning != "user explicitly requested escalation | hand off on first request" {
		t.Fatalf("AIReasoning=%q", issue.AIReasoning)
	}
	if issue.Excerpt != "user asked for a human twice" {
		t.Fatalf("Excerpt=%q", issue.Excerpt)
	}
}

func TestIssuesFromJudgment_NilRating(t *testing.T) {
	t.Parallel()

	convo := Conversation{ID: "c1"}
	j := passingJudgment(Flag{Type: FlagDeadEnd, Severity: SeverityLow, Confidence: ConfidenceLow})
	issues := IssuesFromJudgment(convo, j)
	if len(issues) != 1 {
		t.Fatalf("issues=%d, want 1", len(issues))
	}
	v, ok := issues[0].Details[DetailRating]
	if !ok {
		t.Fatalf("rating detail missing entirely")
	}
	if v != nil {
		t.Fatalf("rating=%v, want nil", v)
	}
}
