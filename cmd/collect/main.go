package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/LJTian/ArticleHub/internal/aggregator"
	"github.com/LJTian/ArticleHub/internal/collector"
	"github.com/LJTian/ArticleHub/internal/config"
	"github.com/LJTian/ArticleHub/internal/processor"
	"github.com/LJTian/ArticleHub/internal/storage"
)

// 一个仅执行一次聚合的命令行入口：适合手动触发或排查数据源问题
func main() {
	history := flag.Int("history", 0, "list the latest N aggregation runs instead of running one")
	backfill := flag.Bool("thumbnails", false, "resolve og:image for articles without a thumbnail")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	store.SnapshotTTL = cfg.Cache.MaxStale

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *history > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		runs, err := store.ListRuns(ctx, *history)
		if err != nil {
			log.Fatalf("list runs failed: %v", err)
		}
		if err := enc.Encode(runs); err != nil {
			log.Fatalf("encode runs failed: %v", err)
		}
		return
	}

	p := processor.NewProcessor(processor.Options{NoteAssetHost: cfg.Sources.Note.AssetHost})
	opts := []aggregator.Option{aggregator.WithRecorder(store)}
	if *backfill || cfg.ThumbnailBackfill {
		opts = append(opts, aggregator.WithThumbnailResolver(collector.NewOGImageResolver(5*time.Second)))
	}
	agg := aggregator.New(collector.FromConfig(cfg.Sources), p, opts...)

	// 只执行一轮聚合，结果同时写入快照，API 进程重启时可直接使用
	batch := agg.Run(context.Background())
	if store.HasRedis() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.SaveSnapshot(ctx, batch); err != nil {
			log.Printf("warn: save snapshot: %v", err)
		}
	}

	if err := enc.Encode(batch); err != nil {
		log.Fatalf("encode batch failed: %v", err)
	}
}
