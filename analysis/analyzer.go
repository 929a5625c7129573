package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency bounds in-flight judge calls. The judge transport's
// connection pool must be sized to at least this, or the pool becomes a second
// bottleneck behind the governor.
const DefaultMaxConcurrency = 500

// Judge is the external scoring oracle: given a conversation and its rendered
// prompt, return a structured judgment or fail. Implementations fail with a
// plain error on any transport, rate-limit, or schema problem; retry is the
// orchestrator's job.
type Judge interface {
	Invoke(ctx context.Context, convo Conversation, prompt string) (Judgment, error)
}

// AnalyzerOptions configures an Analyzer. Zero values fall back to defaults.
type AnalyzerOptions struct {
	MaxConcurrency int
	Retry          RetryPolicy
	Prompt         PromptOptions
	Logger         *zap.Logger
}

// Analyzer fans conversations out to the judge under a bounded-concurrency
// governor, persists each judgment to the result cache before any further
// processing, and collects per-conversation issue lists as they complete.
type Analyzer struct {
	judge  Judge
	cache  *ResultCache
	retry  RetryPolicy
	gate   *semaphore.Weighted
	prompt PromptOptions
	logger *zap.Logger
}

// NewAnalyzer wires a judge and a result cache into an orchestrator.
func NewAnalyzer(judge Judge, cache *ResultCache, opts AnalyzerOptions) *Analyzer {
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		judge:  judge,
		cache:  cache,
		retry:  retry,
		gate:   semaphore.NewWeighted(int64(maxConcurrency)),
		prompt: opts.Prompt,
		logger: logger,
	}
}

// conversationOutcome is the per-conversation result: a judgment converted to
// issues, or a typed failure reason. Failures are isolated; they never abort
// sibling conversations.
type conversationOutcome struct {
	conversationID string
	issues         []Issue
	fromCache      bool
	err            error
}

// Analyze scores every conversation concurrently and aggregates the resulting
// issues. Completion is collected as it happens, not in submission order; the
// final aggregate is independent of completion order. A conversation whose
// judge calls exhaust all retries contributes zero issues and is logged.
// Analyze returns a non-nil error only when the whole batch is canceled;
// judgments persisted before cancellation remain reusable on the next run.
func (a *Analyzer) Analyze(ctx context.Context, conversations []Conversation) (QualityAnalysis, error) {
	a.logger.Info("starting conversation analysis",
		zap.Int("conversations", len(conversations)))

	outcomes := make(chan conversationOutcome, len(conversations))
	for _, convo := range conversations {
		convo := convo
		go func() {
			issues, fromCache, err := a.analyzeOne(ctx, convo)
			outcomes <- conversationOutcome{
				conversationID: convo.ID,
				issues:         issues,
				fromCache:      fromCache,
				err:            err,
			}
		}()
	}

	var all []Issue
	var cacheHits, failed, completed int
	for range conversations {
		out := <-outcomes
		completed++
		switch {
		case out.err != nil:
			failed++
			a.logger.Error("conversation analysis failed, recording zero issues",
				zap.String("conversation_id", out.conversationID),
				zap.Error(out.err))
		default:
			if out.fromCache {
				cacheHits++
			}
			all = append(all, out.issues...)
		}
		a.logger.Debug("conversation analyzed",
			zap.String("conversation_id", out.conversationID),
			zap.Int("completed", completed),
			zap.Int("total", len(conversations)))
	}

	qa := Aggregate(len(conversations), all)
	a.logger.Info("conversation analysis complete",
		zap.Int("conversations", len(conversations)),
		zap.Int("cache_hits", cacheHits),
		zap.Int("failed", failed),
		zap.Int("issues", len(all)))

	if err := ctx.Err(); err != nil {
		return qa, err
	}
	return qa, nil
}

// analyzeOne runs one conversation's pipeline: cache check, then
// judge-with-retry under a governor slot, then persist, then convert. Steps
// are strictly sequential within a conversation.
func (a *Analyzer) analyzeOne(ctx context.Context, convo Conversation) (issues []Issue, fromCache bool, err error) {
	if cached, ok := a.cache.Get(convo.ID); ok {
		return IssuesFromJudgment(convo, cached), true, nil
	}

	prompt := BuildJudgePrompt(convo, a.prompt)

	var judgment Judgment
	err = a.retry.Do(ctx, func(ctx context.Context) error {
		// The governor slot covers only the judge call: a task waiting out a
		// backoff or doing cache IO holds no slot.
		if err := a.gate.Acquire(ctx, 1); err != nil {
			return err
		}
		j, invokeErr := a.judge.Invoke(ctx, convo, prompt)
		a.gate.Release(1)
		if invokeErr != nil {
			return invokeErr
		}
		j.Normalize()
		if err := j.Validate(); err != nil {
			return fmt.Errorf("judgment failed schema validation: %w", err)
		}
		judgment = j
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	// Persist before converting so a crash from here on still leaves a durable
	// artifact. A write failure is logged but does not discard this run's
	// in-memory judgment.
	if putErr := a.cache.Put(convo.ID, judgment); putErr != nil {
		a.logger.Warn("failed to persist judgment",
			zap.String("conversation_id", convo.ID),
			zap.Error(putErr))
	}

	return IssuesFromJudgment(convo, judgment), false, nil
}

// IssuesFromJudgment projects a judgment's flags into reporting-facing issues,
// tagging each with conversation-level context (message count, status, rating)
// and judgment-level context (overall score/verdict, confidence, fix).
func IssuesFromJudgment(convo Conversation, j Judgment) []Issue {
	issues := make([]Issue, 0, len(j.Flags))
	for _, flag := range j.Flags {
		details := map[string]any{
			DetailMessageCount:     len(convo.Messages),
			DetailStatus:           convo.Status,
			DetailOverallScore:     j.OverallScore,
			DetailOverallVerdict:   string(j.OverallVerdict),
			DetailMessagesInvolved: append([]int(nil), flag.Messages...),
			DetailConfidence:       string(flag.Confidence),
			DetailRecommendedFix:   flag.RecommendedFix,
		}
		if convo.Rating != nil {
			details[DetailRating] = *convo.Rating
		} else {
			details[DetailRating] = nil
		}

		issues = append(issues, Issue{
			ConversationID: convo.ID,
			IssueType:      flag.Type.IssueType(),
			Details:        details,
			SeverityScore:  flag.Severity.Weight(),
			AIReasoning:    flag.WhyItMatters + " | " + flag.RecommendedFix,
			Excerpt:        flag.Evidence,
		})
	}
	return issues
}
