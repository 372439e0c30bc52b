package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LJTian/ArticleHub/internal/aggregator"
	"github.com/LJTian/ArticleHub/internal/processor"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// snapshotKey 整个管道只有一份批次，快照也只有一个 key
const snapshotKey = "articles:snapshot"

// 单个数据源错误信息入库时的长度上限
const maxErrorRunes = 500

var (
	ErrNoRedis    = errors.New("storage: redis not configured")
	ErrNoDatabase = errors.New("storage: database not configured")
)

// FetchRun 一轮聚合的执行记录；只记录运行情况，不保存文章本身
type FetchRun struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	RunID         string            `gorm:"size:36;uniqueIndex" json:"runId"`
	GeneratedAt   time.Time         `gorm:"index" json:"generatedAt"`
	Articles      int               `json:"articles"`
	FailedSources int               `json:"failedSources"`
	Sources       datatypes.JSONMap `gorm:"type:jsonb" json:"sources"`

	CreatedAt time.Time `json:"createdAt"`
}

// Store 组合 Postgres（运行记录）与 Redis（批次快照），两者都可以不配置
type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
	// SnapshotTTL 快照过期时间，0 表示不过期
	SnapshotTTL time.Duration
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	s := &Store{}

	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(&FetchRun{}); err != nil {
			return nil, err
		}
		s.DB = db
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("warn: redis ping failed: %v", err)
		}
		s.Redis = rdb
	}

	return s, nil
}

func (s *Store) HasRedis() bool {
	return s != nil && s.Redis != nil
}

func (s *Store) HasDB() bool {
	return s != nil && s.DB != nil
}

// SaveSnapshot 把批次写入 Redis，供重启后预热
func (s *Store) SaveSnapshot(ctx context.Context, b *aggregator.Batch) error {
	if !s.HasRedis() {
		return ErrNoRedis
	}
	bs, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	return s.Redis.Set(ctx, snapshotKey, bs, s.SnapshotTTL).Err()
}

// LoadSnapshot 读取快照；不存在时返回 nil, nil
func (s *Store) LoadSnapshot(ctx context.Context) (*aggregator.Batch, error) {
	if !s.HasRedis() {
		return nil, ErrNoRedis
	}
	bs, err := s.Redis.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(bs)
}

func decodeSnapshot(bs []byte) (*aggregator.Batch, error) {
	var b aggregator.Batch
	if err := json.Unmarshal(bs, &b); err != nil {
		return nil, fmt.Errorf("storage: decode snapshot: %w", err)
	}
	if b.RunID == "" || b.GeneratedAt.IsZero() {
		return nil, errors.New("storage: snapshot missing run metadata")
	}
	if b.Articles == nil {
		b.Articles = []processor.Article{}
	}
	return &b, nil
}

// RecordRun 保存一轮聚合的执行情况；未配置数据库时直接跳过
func (s *Store) RecordRun(ctx context.Context, b *aggregator.Batch) error {
	if !s.HasDB() {
		return nil
	}
	run := runFromBatch(b)
	return s.DB.WithContext(ctx).Create(&run).Error
}

// ListRuns 按时间倒序返回最近的运行记录
func (s *Store) ListRuns(ctx context.Context, limit int) ([]FetchRun, error) {
	if !s.HasDB() {
		return nil, ErrNoDatabase
	}
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	var list []FetchRun
	if err := s.DB.WithContext(ctx).Order("generated_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func runFromBatch(b *aggregator.Batch) FetchRun {
	sources := datatypes.JSONMap{}
	failed := 0
	for _, src := range b.Sources {
		entry := map[string]any{
			"platform":   string(src.Platform),
			"count":      src.Count,
			"durationMs": src.Duration.Milliseconds(),
		}
		if src.Failed() {
			failed++
			entry["error"] = truncateRunesDB(toValidUTF8(src.Error), maxErrorRunes)
		}
		sources[src.Name] = entry
	}
	return FetchRun{
		RunID:         b.RunID,
		GeneratedAt:   b.GeneratedAt,
		Articles:      len(b.Articles),
		FailedSources: failed,
		Sources:       sources,
	}
}

// toValidUTF8 上游错误信息可能夹带非法字节，入库前规范化，避免 PostgreSQL invalid byte sequence
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断，保证不会超过字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
