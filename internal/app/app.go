package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/clearcut-studio/studio-server/internal/batch"
	"github.com/clearcut-studio/studio-server/internal/config"
	"github.com/clearcut-studio/studio-server/internal/db"
	"github.com/clearcut-studio/studio-server/internal/db/repository"
	"github.com/clearcut-studio/studio-server/internal/db/seal"
	"github.com/clearcut-studio/studio-server/internal/disk"
	"github.com/clearcut-studio/studio-server/internal/filestorage"
	"github.com/clearcut-studio/studio-server/internal/mq"
	"github.com/clearcut-studio/studio-server/internal/providers"
	"github.com/clearcut-studio/studio-server/internal/uploader"
	"github.com/clearcut-studio/studio-server/pkg/logger"
	"github.com/clearcut-studio/studio-server/pkg/promptfilter"
)

type App struct {
	mq         mq.MQ
	db         *bun.DB
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc
	uploader   *uploader.Uploader

	Logger       *zap.Logger
	Disk         *disk.Client
	Providers    *providers.Registry
	Batch        *batch.Service
	PromptFilter *promptfilter.Filter

	ProviderKeyRepository  repository.IProviderKeyRepository
	TokenRepository        repository.ITokenRepository
	RecentFolderRepository repository.IRecentFolderRepository
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithMQ() OptionFunc {
	return func(app *App) error {
		queue, err := mq.NewMQ(app.config)
		if err != nil {
			return err
		}
		app.mq = queue
		return nil
	}
}

func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		conn, err := db.NewConnection(app.ctx, app.config)
		if err != nil {
			return err
		}
		app.db = conn.GetDB()

		if err := db.CreateSchema(app.ctx, conn); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}

		sealer := seal.New(app.config.SealPassphrase())
		app.ProviderKeyRepository = repository.NewProviderKeyRepository(app.db, sealer)
		app.TokenRepository = repository.NewTokenRepository(app.db, sealer)
		app.RecentFolderRepository = repository.NewRecentFolderRepository(app.db)

		return nil
	}
}

func WithUploader() OptionFunc {
	return func(app *App) error {
		fs, err := filestorage.NewFileStorage(app.config)
		if err != nil {
			return err
		}
		app.uploader = uploader.NewUploader(fs, 10)
		return nil
	}
}

func WithDisk() OptionFunc {
	return func(app *App) error {
		app.Disk = disk.NewClient(&http.Client{Timeout: 2 * time.Minute})
		return nil
	}
}

func WithProviders() OptionFunc {
	return func(app *App) error {
		app.Providers = providers.DefaultRegistry(nil)
		return nil
	}
}

func WithBatchService() OptionFunc {
	return func(app *App) error {
		if app.Disk == nil || app.Providers == nil || app.mq == nil {
			return fmt.Errorf("batch service needs disk, providers and mq")
		}
		app.Batch = batch.NewService(app.Disk, app.Providers, app.mq)
		return nil
	}
}

func WithPromptFilter() OptionFunc {
	return func(app *App) error {
		app.PromptFilter = promptfilter.New(app.config)
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	log, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     cfg,
		Logger:     log,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			// Continue even if some options fail
			app.Logger.Error("failed to apply option", zap.Error(err))
		}
	}

	return app, nil
}

func (app *App) Close() {
	app.cancelFunc()

	if app.uploader != nil {
		app.uploader.Stop()
	}
	if app.mq != nil {
		app.mq.Close()
	}
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) MQ() mq.MQ {
	return app.mq
}

func (app *App) DB() *bun.DB {
	return app.db
}

func (app *App) Uploader() *uploader.Uploader {
	return app.uploader
}
