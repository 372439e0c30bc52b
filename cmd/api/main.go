package main

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/LJTian/ArticleHub/internal/aggregator"
	"github.com/LJTian/ArticleHub/internal/api"
	"github.com/LJTian/ArticleHub/internal/cache"
	"github.com/LJTian/ArticleHub/internal/collector"
	"github.com/LJTian/ArticleHub/internal/config"
	"github.com/LJTian/ArticleHub/internal/processor"
	"github.com/LJTian/ArticleHub/internal/scheduler"
	"github.com/LJTian/ArticleHub/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	store.SnapshotTTL = cfg.Cache.MaxStale

	agg := newAggregator(cfg, store)

	cacheOpts := cache.Options{
		Interval:    cfg.Cache.Interval,
		MaxStale:    cfg.Cache.MaxStale,
		MaxFailures: cfg.Cache.MaxRefreshFailures,
		RetryDelay:  cfg.Cache.RetryDelay,
	}
	if store.HasRedis() {
		cacheOpts.Snapshot = store
	}
	articles := cache.New(func(ctx context.Context) (*aggregator.Batch, error) {
		return agg.Run(ctx), nil
	}, cacheOpts)

	// 定时预热：缓存过期前后由后台刷新，用户请求尽量命中 FRESH
	if cfg.CronSpec != "" {
		s, err := scheduler.New(cfg.CronSpec, articles)
		if err != nil {
			log.Fatalf("init scheduler failed: %v", err)
		}
		s.Start()
	}

	// API
	r := gin.Default()

	apiServer := api.NewServer(articles)
	apiServer.RegisterRoutes(r)

	// 若配置了前端目录，则托管 SPA 静态文件并做 fallback
	if cfg.WebRoot != "" {
		assetsDir := filepath.Join(cfg.WebRoot, "assets")
		indexFile := filepath.Join(cfg.WebRoot, "index.html")
		r.Static("/assets", assetsDir)
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet {
				c.Status(http.StatusNotFound)
				return
			}
			// SPA：未匹配 API 的 GET 均返回 index.html
			c.File(indexFile)
		})
	}
	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}

func newAggregator(cfg *config.Config, store *storage.Store) *aggregator.Aggregator {
	fetchers := collector.FromConfig(cfg.Sources)
	p := processor.NewProcessor(processor.Options{NoteAssetHost: cfg.Sources.Note.AssetHost})

	opts := []aggregator.Option{aggregator.WithRecorder(store)}
	if cfg.ThumbnailBackfill {
		opts = append(opts, aggregator.WithThumbnailResolver(collector.NewOGImageResolver(5*time.Second)))
	}
	return aggregator.New(fetchers, p, opts...)
}
