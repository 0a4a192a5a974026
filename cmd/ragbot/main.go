package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragbot/internal/bus"
	"ragbot/internal/channel"
	"ragbot/internal/classify"
	"ragbot/internal/config"
	"ragbot/internal/dispatch"
	"ragbot/internal/fetch"
	"ragbot/internal/github"
	"ragbot/internal/knowledge"
	"ragbot/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "ragbot",
		Short: "ragbot: Slack knowledge-base bot",
		Long:  "ragbot ingests shared documents into a knowledge base, answers questions against it, and files GitHub issues from chat.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.ragbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Slack and start handling events",
		RunE:  runServe,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ragbot v%s\n", version)
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads .env, then the config file, falling back to a pure
// environment-based config when no file exists.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded environment from .env")
	}

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config file not usable, using environment", "path", cfgPath, "err", err)
		return config.FromEnv()
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setLogLevel(cfg.General.LogLevel)

	if cfg.Slack.BotToken == "" || cfg.Slack.AppToken == "" {
		return fmt.Errorf("slack tokens missing: set SLACK_BOT_TOKEN and SLACK_APP_TOKEN")
	}

	// Graceful shutdown on signals.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fileStore, err := store.NewDir(cfg.General.SaveDir)
	if err != nil {
		return err
	}

	knowStore, err := knowledge.NewSQLiteStore(cfg.Knowledge.DBPath, logger)
	if err != nil {
		return err
	}
	defer knowStore.Close()

	engine := knowledge.NewEngine(knowledge.EngineConfig{
		Store:     knowStore,
		ChunkSize: cfg.Knowledge.ChunkSize,
		Overlap:   cfg.Knowledge.ChunkOverlap,
		Logger:    logger,
	})

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	slackCh := channel.NewSlack(channel.SlackConfig{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Logger:   logger,
	})

	// Resolve the bot's own identity once, before anything consumes events.
	if err := slackCh.Connect(); err != nil {
		return err
	}

	issues := github.New(github.Config{
		BaseURL: cfg.GitHub.APIBase,
		Token:   cfg.GitHub.Token,
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
	})
	if cfg.GitHub.Token == "" || cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		logger.Warn("GitHub settings incomplete: issue filing will report a configuration error")
	}

	dispatcher := dispatch.New(dispatch.Config{
		Classifier:  classify.New(slackCh.SelfID()),
		Chat:        slackCh,
		Indexer:     engine,
		Issues:      issues,
		Fetcher:     fetch.New(cfg.Slack.BotToken, time.Duration(cfg.General.DownloadTimeoutSeconds)*time.Second),
		Files:       fileStore,
		Bus:         messageBus,
		Logger:      logger,
		TopK:        cfg.Knowledge.SearchTopK,
		Concurrency: cfg.General.MaxConcurrentEvents,
	})

	go dispatcher.Run(ctx)

	return slackCh.Start(ctx, messageBus)
}

func setLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
