// Command convo-analyze scores archived support conversations with an LLM
// judge and writes the full artifact set: issues JSON/CSV, flattened
// per-conversation CSVs, a markdown summary, and a run manifest. Judgments
// are cached per conversation so an interrupted run resumes where it left
// off.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
	"github.com/AmiraLearning/amira-amirabot-analysis/analysis/provider"
	"github.com/AmiraLearning/amira-amirabot-analysis/config"
	"github.com/AmiraLearning/amira-amirabot-analysis/report"
	"github.com/AmiraLearning/amira-amirabot-analysis/source"
)

type Config struct {
	ConfigPath string

	ConversationsDir string
	StorePath        string
	AnalysesDir      string
	OutputDir        string

	Model       string
	Concurrency int
	MaxRetries  int
	APIKey      string

	NoCache bool
}

func (c Config) Validate() error {
	if c.ConversationsDir == "" {
		return errors.New("missing -conversations-dir")
	}
	if c.AnalysesDir == "" {
		return errors.New("missing -analyses-dir")
	}
	if c.OutputDir == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.MaxRetries <= 0 {
		return errors.New("max-retries must be > 0")
	}
	return nil
}

func defaultConfig(fileCfg config.Config) Config {
	return Config{
		ConversationsDir: fileCfg.Paths.ConversationsDir,
		StorePath:        fileCfg.Paths.StorePath,
		AnalysesDir:      fileCfg.Paths.AnalysesDir,
		OutputDir:        fileCfg.Paths.OutputDir,
		Model:            fileCfg.Judge.Model,
		Concurrency:      fileCfg.Judge.MaxConcurrency,
		MaxRetries:       fileCfg.Judge.MaxRetries,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	fs.SetOutput(os.Stderr)

	configPath := config.DefaultPath
	for i, arg := range args {
		if arg == "-config" || arg == "--config" {
			if i+1 < len(args) {
				configPath = args[i+1]
			}
		}
	}
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return Config{}, err
	}

	cfg := defaultConfig(fileCfg)
	cfg.ConfigPath = configPath
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Path to the YAML run configuration")
	fs.StringVar(&cfg.ConversationsDir, "conversations-dir", cfg.ConversationsDir, "Directory of archived per-conversation JSON files")
	fs.StringVar(&cfg.StorePath, "db", cfg.StorePath, "Path to the SQLite conversation mirror (preferred over the JSON archive when present)")
	fs.StringVar(&cfg.AnalysesDir, "analyses-dir", cfg.AnalysesDir, "Directory for cached per-conversation judgment JSON files")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory for report artifacts")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use (e.g. gpt-5-mini)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Max concurrent judge calls")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Max judge attempts per conversation")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.BoolVar(&cfg.NoCache, "no-cache", false, "Ignore cached judgments and re-judge every conversation")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.ConversationsDir = filepath.Clean(cfg.ConversationsDir)
	cfg.AnalysesDir = filepath.Clean(cfg.AnalysesDir)
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, apiKey, logger); err != nil {
		logger.Error("analysis failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, apiKey string, logger *zap.Logger) error {
	archive, err := source.NewArchive(cfg.ConversationsDir, logger)
	if err != nil {
		return err
	}
	conversations, err := source.LoadCached(ctx, cfg.StorePath, archive, logger)
	if err != nil {
		return err
	}
	if len(conversations) == 0 {
		return fmt.Errorf("no archived conversations in %s (run convo-fetch first)", cfg.ConversationsDir)
	}
	logger.Info("loaded conversations", zap.Int("count", len(conversations)))

	cache, err := analysis.NewResultCache(cfg.AnalysesDir, cfg.NoCache, logger)
	if err != nil {
		return err
	}

	judge, err := provider.NewOpenAIJudge(apiKey, provider.JudgeOptions{
		Model:          cfg.Model,
		MaxConcurrency: cfg.Concurrency,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	retry := analysis.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries

	analyzer := analysis.NewAnalyzer(judge, cache, analysis.AnalyzerOptions{
		MaxConcurrency: cfg.Concurrency,
		Retry:          retry,
		Logger:         logger,
	})

	start := time.Now()
	qa, err := analyzer.Analyze(ctx, conversations)
	if err != nil {
		return err
	}
	logger.Info("analysis complete",
		zap.Int("total_analyzed", qa.TotalAnalyzed),
		zap.Duration("elapsed", time.Since(start)))

	judgments, err := cache.LoadAll()
	if err != nil {
		return err
	}
	return writeArtifacts(cfg, judge.Model(), conversations, judgments, qa, logger)
}

func writeArtifacts(cfg Config, model string, conversations []analysis.Conversation, judgments map[string]analysis.Judgment, qa analysis.QualityAnalysis, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("mkdir -out: %w", err)
	}

	artifacts := []string{
		filepath.Join(cfg.OutputDir, "issues.json"),
		filepath.Join(cfg.OutputDir, "issues.csv"),
		filepath.Join(cfg.OutputDir, "conversation_analyses.csv"),
		filepath.Join(cfg.OutputDir, "conversations_full.csv"),
		filepath.Join(cfg.OutputDir, "summary_report.md"),
	}

	if err := report.WriteIssuesJSON(qa, artifacts[0]); err != nil {
		return err
	}
	if err := report.WriteIssuesCSV(qa, artifacts[1]); err != nil {
		return err
	}
	if err := report.WriteConversationAnalysesCSV(judgments, artifacts[2]); err != nil {
		return err
	}
	if err := report.WriteConversationsFullCSV(conversations, judgments, artifacts[3]); err != nil {
		return err
	}
	if err := report.WriteSummaryMarkdown(report.SummaryInput{
		Analysis:  qa,
		Judgments: judgments,
		Model:     model,
	}, artifacts[4]); err != nil {
		return err
	}

	manifest := report.NewRunManifest(model, qa, artifacts)
	if err := report.WriteManifest(manifest, filepath.Join(cfg.OutputDir, "run_manifest.json")); err != nil {
		return err
	}

	logger.Info("wrote report artifacts",
		zap.String("run_id", manifest.RunID),
		zap.String("dir", cfg.OutputDir),
		zap.Int("artifacts", len(artifacts)+1))
	return nil
}
