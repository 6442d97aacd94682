package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/marginguard/config"
	"github.com/rustyeddy/marginguard/internal/logging"
	"github.com/rustyeddy/marginguard/journal"
	"github.com/rustyeddy/marginguard/rules"
	"github.com/rustyeddy/marginguard/rules/fetch"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}

// newDownloader returns the collaborator used on rule cache misses, or nil
// when downloads are disabled.
func newDownloader(cfg *config.Config) rules.Downloader {
	if !cfg.Rules.Download {
		return nil
	}
	h := fetch.NewHTTP(nil, fetch.DefaultURLs())
	if cfg.Rules.BinanceAPIKey != "" && cfg.Rules.BinanceSecretKey != "" {
		h.Brackets = fetch.NewBinanceBrackets(cfg.Rules.BinanceAPIKey, cfg.Rules.BinanceSecretKey, "")
	}
	return h
}

func newRepository(cfg *config.Config, log *zap.Logger, refresh bool) *rules.Repository {
	opts := []rules.Option{rules.WithLogger(log), rules.WithRefresh(refresh)}
	if dl := newDownloader(cfg); dl != nil {
		opts = append(opts, rules.WithDownloader(dl))
	}
	return rules.NewRepository(cfg.Rules.CacheDir, opts...)
}

// openJournal returns nil for journal type "none".
func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.CyclesFile, cfg.RoutesFile)
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	case "postgres":
		return journal.NewPostgres(cfg.DSN)
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
}

// queryJournal is a journal that can be read back.
type queryJournal interface {
	GetSession(sessionID string) (journal.SessionRecord, error)
	ListSessions() ([]journal.SessionRecord, error)
	ListCycles(sessionID string) ([]journal.CycleRecord, error)
	Close() error
}

func openQueryJournal(cfg config.JournalConfig) (queryJournal, error) {
	switch cfg.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	case "postgres":
		return journal.NewPostgres(cfg.DSN)
	}
	return nil, fmt.Errorf("journal type %q cannot be queried; use sqlite or postgres", cfg.Type)
}
