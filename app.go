package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adminbjkai/img2/config"
	"github.com/adminbjkai/img2/middleware"
	"github.com/adminbjkai/img2/models"
	"github.com/adminbjkai/img2/routes"
	"github.com/adminbjkai/img2/storage"
	"github.com/adminbjkai/img2/utils"
)

// app holds the long-lived components shared by the commands.
type app struct {
	cfg      config.AppConfig
	db       *gorm.DB
	store    *storage.ContentStore
	service  *storage.Service
	sweeper  *storage.Sweeper
	registry *prometheus.Registry
	logger   *zap.Logger
}

// newApp opens the metadata database and the upload directory on fs.
func newApp(cfg config.AppConfig, fs afero.Fs, logger *zap.Logger) (*app, error) {
	db, err := config.OpenDatabase(cfg, &models.Image{})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer, err := storage.NewPrometheusObserver(cfg.ServiceName, registry)
	if err != nil {
		return nil, err
	}

	opts := []storage.Option{
		storage.WithLogger(logger.Named("store")),
		storage.WithObserver(observer),
	}
	if cache := utils.NewRedisCache(utils.GetRedis(), cfg.ServiceName+":"); cache != nil {
		opts = append(opts, storage.WithPreviewCache(cache))
	} else {
		mem, err := utils.NewMemoryCache(cfg.PreviewCacheEntries)
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithPreviewCache(mem))
	}
	store := storage.NewContentStore(fs, cfg.UploadDir, storage.NewMetadataStore(db), opts...)
	if err := store.Init(); err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.SweepIntervalSec) * time.Second
	return &app{
		cfg:      cfg,
		db:       db,
		store:    store,
		service:  storage.NewService(store, cfg.MaxUploadBytes()),
		sweeper:  storage.NewSweeper(store, interval, logger.Named("sweeper")),
		registry: registry,
		logger:   logger,
	}, nil
}

// quotaCounter returns the Redis backed upload counter, or nil when the
// quota is off or Redis is not configured.
func (a *app) quotaCounter() middleware.QuotaCounter {
	if a.cfg.UploadsPerIPPerDay <= 0 {
		return nil
	}
	cli := utils.GetRedis()
	if cli == nil {
		a.logger.Warn("UPLOADS_PER_IP_PER_DAY is set but REDIS_HOST is empty, quota disabled")
		return nil
	}
	return middleware.NewRedisQuotaCounter(cli)
}

func (a *app) router() *gin.Engine {
	return routes.SetupRouter(a.cfg, routes.Dependencies{
		Service:  a.service,
		Gatherer: a.registry,
		Quota:    a.quotaCounter(),
		Logger:   a.logger,
	})
}

// startSweeper runs the sweeper in the background. The returned stop
// function cancels it and waits for the current pass to finish.
func (a *app) startSweeper() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (a *app) close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
