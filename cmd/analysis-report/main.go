// Command analysis-report regenerates the report artifacts from cached
// judgments without touching the API or the judge. Useful after hand-editing
// a judgment file or when iterating on report output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
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
	Model            string
}

func (c Config) Validate() error {
	if c.AnalysesDir == "" {
		return errors.New("missing -analyses-dir")
	}
	if c.OutputDir == "" {
		return errors.New("missing -out")
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
	fs.StringVar(&cfg.ConversationsDir, "conversations-dir", cfg.ConversationsDir, "Directory of archived per-conversation JSON files (optional)")
	fs.StringVar(&cfg.StorePath, "db", cfg.StorePath, "Path to the SQLite conversation mirror (preferred over the JSON archive when present)")
	fs.StringVar(&cfg.AnalysesDir, "analyses-dir", cfg.AnalysesDir, "Directory of cached per-conversation judgment JSON files")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory for report artifacts")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Judge model name recorded in the manifest")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
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

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("report generation failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg Config, logger *zap.Logger) error {
	cache, err := analysis.NewResultCache(cfg.AnalysesDir, false, logger)
	if err != nil {
		return err
	}
	judgments, err := cache.LoadAll()
	if err != nil {
		return err
	}
	if len(judgments) == 0 {
		return fmt.Errorf("no judgment files in %s (run convo-analyze first)", cfg.AnalysesDir)
	}
	logger.Info("loaded judgments", zap.Int("count", len(judgments)))

	var conversations []analysis.Conversation
	if cfg.ConversationsDir != "" {
		archive, err := source.NewArchive(cfg.ConversationsDir, logger)
		if err != nil {
			return err
		}
		conversations, err = source.LoadCached(context.Background(), cfg.StorePath, archive, logger)
		if err != nil {
			return err
		}
	}

	// Rebuild the aggregate from the cached judgments so the reports match
	// what is on disk. Judgments are walked in ID order so repeated runs
	// produce identical artifacts.
	ids := make([]string, 0, len(judgments))
	for id := range judgments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var issues []analysis.Issue
	byID := make(map[string]analysis.Conversation, len(conversations))
	for _, convo := range conversations {
		byID[convo.ID] = convo
	}
	for _, id := range ids {
		convo, ok := byID[id]
		if !ok {
			convo = analysis.Conversation{ID: id}
		}
		issues = append(issues, analysis.IssuesFromJudgment(convo, judgments[id])...)
	}
	qa := analysis.Aggregate(len(judgments), issues)

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
		Model:     cfg.Model,
	}, artifacts[4]); err != nil {
		return err
	}

	manifest := report.NewRunManifest(cfg.Model, qa, artifacts)
	if err := report.WriteManifest(manifest, filepath.Join(cfg.OutputDir, "run_manifest.json")); err != nil {
		return err
	}
	logger.Info("wrote report artifacts",
		zap.String("run_id", manifest.RunID),
		zap.String("dir", cfg.OutputDir))
	return nil
}
