package main

import (
	"database/sql"
	"fmt"

	"github.com/xxxsen/apisync/internal/config"
	"github.com/xxxsen/apisync/internal/db"
	"github.com/xxxsen/apisync/internal/fetch"
	"github.com/xxxsen/apisync/internal/filestore"
	"github.com/xxxsen/apisync/internal/image"
	"github.com/xxxsen/apisync/internal/project"
	"github.com/xxxsen/apisync/internal/repo"
	"github.com/xxxsen/apisync/internal/service"
)

// App holds the wired components shared by every command.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Store  filestore.Store
	Assets *repo.AssetRepo
	Jobs   *service.JobService
	Runner *service.SyncRunner
	Gate   *service.SyncGate
	State  *service.RunStateStore
}

func bootstrap(configPath string) (*App, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}

	jobRepo := repo.NewJobRepo(conn)
	bundleRepo := repo.NewBundleRepo(conn)
	recordRepo := repo.NewRecordRepo(conn)
	assetRepo := repo.NewAssetRepo(conn)
	state := service.NewRunStateStore(repo.NewStateRepo(conn))

	refs := service.NewRefResolver(bundleRepo, recordRepo)
	images := image.NewFetcher(cfg.Image, store, assetRepo)
	projector := project.NewProjector(refs, images, bundleRepo, cfg.RichTextFormat)
	runner := service.NewSyncRunner(fetch.New(cfg.Fetch), recordRepo, bundleRepo, refs, projector, state)

	return &App{
		Config: cfg,
		DB:     conn,
		Store:  store,
		Assets: assetRepo,
		Jobs:   service.NewJobService(jobRepo, bundleRepo, recordRepo, state, refs, cfg.Trigger.Secret),
		Runner: runner,
		Gate:   service.NewSyncGate(jobRepo, state, runner),
		State:  state,
	}, nil
}

func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
