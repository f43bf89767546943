package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/broker/bridge"
	"github.com/rustyeddy/tradeagent/broker/paper"
	"github.com/rustyeddy/tradeagent/config"
	"github.com/rustyeddy/tradeagent/journal"
	"github.com/rustyeddy/tradeagent/state"
)

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func openStore(cfg config.StateConfig) (state.Store, error) {
	if cfg.Type == "memory" {
		return state.NewMemoryStore(), nil
	}
	if err := ensureDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	s, err := state.NewSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return s, nil
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "none":
		return journal.Nop{}, nil
	case "csv":
		for _, p := range []string{cfg.OrdersFile, cfg.FillsFile} {
			if err := ensureDir(p); err != nil {
				return nil, fmt.Errorf("journal dir: %w", err)
			}
		}
		return journal.NewCSV(cfg.OrdersFile, cfg.FillsFile)
	default:
		if err := ensureDir(cfg.DBPath); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
		return journal.NewSQLite(cfg.DBPath)
	}
}

func newGateway(cfg *config.Config, log *zap.Logger) (broker.Gateway, error) {
	if cfg.Broker.Type == "bridge" {
		hs, err := config.Duration(cfg.Broker.HandshakeTimeout)
		if err != nil {
			return nil, err
		}
		return bridge.New(bridge.Config{
			URL:              cfg.Broker.URL,
			ClientID:         cfg.Broker.ClientID,
			HandshakeTimeout: hs,
		}, log.Named("bridge")), nil
	}

	gw := paper.New(cfg.Paper.Balance, cfg.Broker.Currency)
	if cfg.Paper.BarsFile != "" {
		bars, err := paper.LoadBarsCSV(cfg.Paper.BarsFile)
		if err != nil {
			return nil, fmt.Errorf("paper bars: %w", err)
		}
		gw.SetBars(cfg.Contract.Symbol, bars)
		log.Info("paper bars loaded", zap.String("symbol", cfg.Contract.Symbol), zap.Int("bars", len(bars)))
	}
	return gw, nil
}

func openRepository(ctx context.Context, cfg config.StateConfig, log *zap.Logger) (*state.Repository, state.Store, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	repo := state.NewRepository(store, cfg.Key, log.Named("state"))
	if _, err := repo.Load(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return repo, store, nil
}
