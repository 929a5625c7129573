// Command convo-fetch pulls support conversations from the Amirabot API and
// archives them locally: one JSON file per conversation, a SQLite mirror, and
// a combined conversations.json for downstream tooling.
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

	"go.uber.org/zap"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
	"github.com/AmiraLearning/amira-amirabot-analysis/config"
	"github.com/AmiraLearning/amira-amirabot-analysis/report"
	"github.com/AmiraLearning/amira-amirabot-analysis/source"
)

type Config struct {
	ConfigPath string
	BaseURL    string
	PageLimit  int
	MaxPages   int

	ConversationsDir  string
	StorePath         string
	ConversationsJSON string

	NoCache bool
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("missing -base-url (or api.base_url in config, or AMIRABOT_API_BASE_URL)")
	}
	if c.PageLimit <= 0 {
		return errors.New("page-limit must be > 0")
	}
	if c.MaxPages <= 0 {
		return errors.New("max-pages must be > 0")
	}
	if c.ConversationsDir == "" {
		return errors.New("missing -conversations-dir")
	}
	return nil
}

func defaultConfig(fileCfg config.Config) Config {
	return Config{
		BaseURL:           fileCfg.API.BaseURL,
		PageLimit:         fileCfg.API.PageLimit,
		MaxPages:          fileCfg.API.MaxPages,
		ConversationsDir:  fileCfg.Paths.ConversationsDir,
		StorePath:         fileCfg.Paths.StorePath,
		ConversationsJSON: "conversations.json",
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	fs.SetOutput(os.Stderr)

	// -config is parsed first so its values become the flag defaults.
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
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL of the conversation API")
	fs.IntVar(&cfg.PageLimit, "page-limit", cfg.PageLimit, "Conversations per page")
	fs.IntVar(&cfg.MaxPages, "max-pages", cfg.MaxPages, "Maximum pages to fetch")
	fs.StringVar(&cfg.ConversationsDir, "conversations-dir", cfg.ConversationsDir, "Directory for per-conversation JSON archives")
	fs.StringVar(&cfg.StorePath, "db", cfg.StorePath, "Path to the SQLite conversation mirror (empty disables)")
	fs.StringVar(&cfg.ConversationsJSON, "out", cfg.ConversationsJSON, "Path for the combined conversations JSON file")
	fs.BoolVar(&cfg.NoCache, "no-cache", false, "Ignore archived conversations and always fetch from the API")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.ConversationsDir = filepath.Clean(cfg.ConversationsDir)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fetch failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	archive, err := source.NewArchive(cfg.ConversationsDir, logger)
	if err != nil {
		return err
	}

	var conversations []analysis.Conversation
	if !cfg.NoCache {
		conversations, err = source.LoadCached(ctx, cfg.StorePath, archive, logger)
		if err != nil {
			return err
		}
		if len(conversations) > 0 {
			logger.Info("using archived conversations",
				zap.Int("count", len(conversations)),
				zap.String("dir", archive.Dir()))
		}
	}

	if len(conversations) == 0 {
		client, err := source.NewClient(cfg.BaseURL, logger)
		if err != nil {
			return err
		}
		opt := source.DefaultFetchOptions()
		opt.PageLimit = cfg.PageLimit
		opt.MaxPages = cfg.MaxPages
		conversations, err = client.FetchAll(ctx, opt)
		if err != nil {
			return err
		}
		saved := archive.SaveAll(conversations)
		logger.Info("archived conversations",
			zap.Int("fetched", len(conversations)),
			zap.Int("saved", saved))
	}

	if cfg.StorePath != "" {
		store, err := source.OpenStore(cfg.StorePath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Upsert(ctx, conversations); err != nil {
			return err
		}
		logger.Info("mirrored conversations to sqlite",
			zap.String("path", cfg.StorePath),
			zap.Int("count", len(conversations)))
	}

	if cfg.ConversationsJSON != "" {
		if err := report.WriteConversationsJSON(conversations, cfg.ConversationsJSON); err != nil {
			return err
		}
		logger.Info("wrote combined conversations file",
			zap.String("path", cfg.ConversationsJSON),
			zap.Int("count", len(conversations)))
	}
	return nil
}
