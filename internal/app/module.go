// Package app composes the client: config, logging, cache, backend, push
// channel, conversation engine, room directory and the TUI shell.
package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/feiralabs/feira/internal/backend"
	"github.com/feiralabs/feira/internal/bus"
	"github.com/feiralabs/feira/internal/cache"
	"github.com/feiralabs/feira/internal/config"
	"github.com/feiralabs/feira/internal/conversation"
	"github.com/feiralabs/feira/internal/directory"
	"github.com/feiralabs/feira/internal/lock"
	"github.com/feiralabs/feira/internal/logging"
	"github.com/feiralabs/feira/internal/profile"
	"github.com/feiralabs/feira/internal/push"
	"github.com/feiralabs/feira/internal/tui"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string

	// Optional overrides for the persisted config.
	UserID   string
	UserName string
	Token    string
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("feira",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideCache,
			provideBackend,
			providePush,
			provideDirectory,
			provideEngine,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, fmt.Errorf("ensure profile dir: %w", err)
	}
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config: %w", err)
		}
		// First run: persist the defaults for editing.
		if saveErr := config.Save(profile.ConfigPath(), cfg); saveErr != nil {
			return nil, fmt.Errorf("write initial config: %w", saveErr)
		}
	}
	if p.UserID != "" {
		cfg.UserID = p.UserID
	}
	if p.UserName != "" {
		cfg.UserName = p.UserName
	}
	if p.Token != "" {
		cfg.Token = p.Token
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("no user id: pass -user or set user_id in %s", profile.ConfigPath())
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	// File-only: stderr belongs to the terminal UI.
	return logging.NewFileOnly(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := profile.CacheDBPath(p.Profile)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBackend(cfg *config.Config, logger *zap.Logger) backend.Client {
	return backend.NewGraphQL(cfg.APIEndpoint, cfg.Token, logger)
}

func providePush(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *push.Channel {
	return push.New(cfg.PushEndpoint, cfg.UserID, cfg.Token, b, logger)
}

func provideDirectory(cfg *config.Config, be backend.Client, db *cache.DB, b *bus.Bus, logger *zap.Logger) *directory.Directory {
	return directory.New(cfg.UserID, "", cfg.RoomPageSize, be, db, b, logger)
}

func provideEngine(cfg *config.Config, be backend.Client, ch *push.Channel, db *cache.DB, b *bus.Bus, logger *zap.Logger) *conversation.Engine {
	text, image, dup := cfg.Windows()
	params := conversation.Params{
		UserID:        cfg.UserID,
		UserName:      cfg.UserName,
		PageSize:      cfg.MessagePageSize,
		ReconcileTail: cfg.ReconcileTail,
		Windows: conversation.Windows{
			Text:      text,
			Image:     image,
			Duplicate: dup,
		},
		MaxImageBytes: cfg.MaxImageBytes,
	}
	return conversation.NewEngine(params, be, ch, db, b, logger)
}

func provideApp(p Params, cfg *config.Config, eng *conversation.Engine, dir *directory.Directory, b *bus.Bus, logger *zap.Logger) *tui.App {
	opts := tui.Options{
		Profile:         p.Profile,
		SelfID:          cfg.UserID,
		TopThreshold:    cfg.TopThresholdRows,
		BottomThreshold: cfg.BottomThresholdRows,
	}
	return tui.NewApp(opts, eng, dir, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, ch *push.Channel, db *cache.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ch.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			ch.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
