// Package provider holds the OpenAI-backed judge used to score support
// conversations, plus the schema plumbing the structured-outputs API needs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
	"github.com/AmiraLearning/amira-amirabot-analysis/analysis/fileutils"
)

const (
	// DefaultModel is the judge model used when none is configured.
	DefaultModel = "gpt-5-mini"

	requestTimeout = 60 * time.Second
	connectTimeout = 10 * time.Second
)

// judgmentSchema is reflected once at init; the schema never changes at runtime.
var judgmentSchema = GenerateSchema[analysis.Judgment]()

// OpenAIJudge scores a single conversation per Invoke call. It performs no
// retries of its own; the analyzer's retry policy owns that concern, so a
// failed call surfaces immediately.
type OpenAIJudge struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// JudgeOptions configures NewOpenAIJudge.
type JudgeOptions struct {
	// Model overrides DefaultModel when non-empty.
	Model string
	// MaxConcurrency sizes the HTTP connection pool so that the analyzer's
	// in-flight ceiling never queues on idle-connection limits.
	MaxConcurrency int
	Logger         *zap.Logger
}

// NewOpenAIJudge builds a judge backed by the OpenAI Responses API.
func NewOpenAIJudge(apiKey string, opt JudgeOptions) (*OpenAIJudge, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("provider: api key is empty")
	}
	model := opt.Model
	if model == "" {
		model = DefaultModel
	}
	poolSize := opt.MaxConcurrency
	if poolSize <= 0 {
		poolSize = analysis.DefaultMaxConcurrency
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			MaxIdleConns:        poolSize,
			MaxIdleConnsPerHost: poolSize,
			MaxConnsPerHost:     poolSize,
		},
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	return &OpenAIJudge{
		client: &client,
		model:  model,
		logger: logger,
	}, nil
}

// Model returns the configured judge model name.
func (j *OpenAIJudge) Model() string { return j.model }

// Invoke sends one conversation to the judge and decodes the structured
// verdict. The returned judgment is raw: normalization and range validation
// happen in the caller.
func (j *OpenAIJudge) Invoke(ctx context.Context, convo analysis.Conversation, prompt string) (analysis.Judgment, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "ConversationJudgment",
			Schema:      judgmentSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Structured quality judgment for one support conversation"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           j.model,
		MaxOutputTokens: openai.Int(4000),
		Instructions:    openai.String(analysis.JudgeInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(analysis.JudgeSystemMessage, responses.EasyInputMessageRoleDeveloper),
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := j.client.Responses.New(ctx, params)
	if err != nil {
		j.logger.Warn("judge call failed",
			zap.String("conversation_id", convo.ID),
			zap.String("error_class", classifyError(err)),
			zap.Error(err))
		return analysis.Judgment{}, fmt.Errorf("judge %s: %w", convo.ID, err)
	}

	var out analysis.Judgment
	if err := fileutils.DecodeModelJSON(resp.OutputText(), &out); err != nil {
		return analysis.Judgment{}, fmt.Errorf("judge %s: decode verdict: %w", convo.ID, err)
	}
	return out, nil
}

func classifyError(err error) string {
	switch {
	case IsRateLimitError(err):
		return "rate_limit"
	case IsServerError(err):
		return "server_error"
	default:
		return "other"
	}
}
