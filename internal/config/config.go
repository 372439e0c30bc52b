package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 配置校验错误
var (
	ErrNoSources           = errors.New("at least one source must be enabled")
	ErrInvalidMaxItems     = errors.New("source max_items must be at least 1")
	ErrInvalidTimeout      = errors.New("source timeout must be positive")
	ErrInvalidInterval     = errors.New("cache interval must be positive")
	ErrInvalidMaxStale     = errors.New("cache max stale must not be shorter than the interval")
	ErrInvalidNoteMode     = errors.New("note mode must be one of: direct, proxy, auto")
	ErrInvalidProxyURL     = errors.New("note proxy url must be an absolute https url")
	ErrMissingNoteProxyURL = errors.New("note proxy url is required when mode is proxy")
)

// Note 渠道的取数方式
const (
	NoteModeDirect = "direct"
	NoteModeProxy  = "proxy"
	NoteModeAuto   = "auto"
)

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	CronSpec string
	WebRoot  string

	Cache   CacheConfig
	Sources SourcesConfig

	ThumbnailBackfill bool
}

// CacheConfig 控制聚合结果的缓存周期与陈旧上限
type CacheConfig struct {
	Interval           time.Duration
	MaxStale           time.Duration
	MaxRefreshFailures int
	// RetryDelay 为 0 时由缓存按 Interval 推导
	RetryDelay time.Duration
}

// SourcesConfig 三个平台的账号与地址，全部可注入，便于测试时指向假服务
type SourcesConfig struct {
	Zenn  FeedSource  `yaml:"zenn"`
	Qiita QiitaSource `yaml:"qiita"`
	Note  NoteSource  `yaml:"note"`
}

type FeedSource struct {
	Enabled  bool          `yaml:"enabled"`
	Username string        `yaml:"username"`
	FeedURL  string        `yaml:"feed_url"`
	MaxItems int           `yaml:"max_items"`
	Timeout  time.Duration `yaml:"timeout"`
}

type QiitaSource struct {
	Enabled  bool          `yaml:"enabled"`
	Username string        `yaml:"username"`
	APIBase  string        `yaml:"api_base"`
	Token    string        `yaml:"token"`
	MaxItems int           `yaml:"max_items"`
	Timeout  time.Duration `yaml:"timeout"`
}

type NoteSource struct {
	FeedSource `yaml:",inline"`
	ProxyURL   string `yaml:"proxy_url"`
	Mode       string `yaml:"mode"`
	AssetHost  string `yaml:"asset_host"`
}

func Load() (*Config, error) {
	// .env 仅在本地开发时存在，找不到不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warn: load .env: %v", err)
	}

	maxItems := getEnvInt("SOURCE_MAX_ITEMS", 20)
	zennUser := getEnv("ZENN_USERNAME", "supermassu")
	qiitaUser := getEnv("QIITA_USERNAME", "rancorder")
	noteUser := getEnv("NOTE_USERNAME", "rancorder")

	cfg := &Config{
		AppPort:     getEnv("APP_PORT", "9000"),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		CronSpec:    getEnv("CRON_SPEC", "*/10 * * * *"),
		WebRoot:     getEnv("WEB_ROOT", ""),
		Cache: CacheConfig{
			Interval:           getEnvDuration("CACHE_INTERVAL", time.Hour),
			MaxStale:           getEnvDuration("CACHE_MAX_STALE", 24*time.Hour),
			MaxRefreshFailures: getEnvInt("CACHE_MAX_REFRESH_FAILURES", 3),
			RetryDelay:         getEnvDuration("CACHE_RETRY_DELAY", 0),
		},
		Sources: SourcesConfig{
			Zenn: FeedSource{
				Enabled:  getEnvBool("ZENN_ENABLED", true),
				Username: zennUser,
				FeedURL:  getEnv("ZENN_FEED_URL", "https://zenn.dev/"+zennUser+"/feed"),
				MaxItems: maxItems,
				Timeout:  getEnvDuration("ZENN_TIMEOUT", 10*time.Second),
			},
			Qiita: QiitaSource{
				Enabled:  getEnvBool("QIITA_ENABLED", true),
				Username: qiitaUser,
				APIBase:  getEnv("QIITA_API_BASE", "https://qiita.com/api/v2"),
				Token:    getEnv("QIITA_TOKEN", ""),
				MaxItems: maxItems,
				Timeout:  getEnvDuration("QIITA_TIMEOUT", 15*time.Second),
			},
			Note: NoteSource{
				FeedSource: FeedSource{
					Enabled:  getEnvBool("NOTE_ENABLED", true),
					Username: noteUser,
					FeedURL:  getEnv("NOTE_FEED_URL", "https://note.com/"+noteUser+"/rss"),
					MaxItems: maxItems,
					Timeout:  getEnvDuration("NOTE_TIMEOUT", 10*time.Second),
				},
				ProxyURL:  getEnv("NOTE_PROXY_URL", "https://api.rss2json.com/v1/api.json"),
				Mode:      getEnv("NOTE_MODE", NoteModeAuto),
				AssetHost: getEnv("NOTE_ASSET_HOST", "https://assets.st-note.com"),
			},
		},
		ThumbnailBackfill: getEnvBool("THUMBNAIL_BACKFILL", false),
	}

	if path := getEnv("SOURCES_FILE", ""); path != "" {
		if err := cfg.loadSourcesFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("config loaded: port=%s cron=%q interval=%s zenn=%s qiita=%s note=%s(%s)",
		cfg.AppPort, cfg.CronSpec, cfg.Cache.Interval,
		cfg.Sources.Zenn.Username, cfg.Sources.Qiita.Username,
		cfg.Sources.Note.Username, cfg.Sources.Note.Mode)
	return cfg, nil
}

// loadSourcesFile 用 YAML 文件覆盖渠道配置；文件中未出现的字段保持环境变量的值
func (c *Config) loadSourcesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sources file: %w", err)
	}
	var doc struct {
		Sources SourcesConfig `yaml:"sources"`
	}
	doc.Sources = c.Sources
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse sources file: %w", err)
	}
	c.Sources = doc.Sources
	return nil
}

func (c *Config) Validate() error {
	s := c.Sources
	if !s.Zenn.Enabled && !s.Qiita.Enabled && !s.Note.Enabled {
		return ErrNoSources
	}
	for _, n := range []int{s.Zenn.MaxItems, s.Qiita.MaxItems, s.Note.MaxItems} {
		if n < 1 {
			return ErrInvalidMaxItems
		}
	}
	for _, d := range []time.Duration{s.Zenn.Timeout, s.Qiita.Timeout, s.Note.Timeout} {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}
	if c.Cache.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.Cache.MaxStale < c.Cache.Interval {
		return ErrInvalidMaxStale
	}

	switch s.Note.Mode {
	case NoteModeDirect, NoteModeAuto:
	case NoteModeProxy:
		if s.Note.ProxyURL == "" {
			return ErrMissingNoteProxyURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNoteMode, s.Note.Mode)
	}
	if s.Note.ProxyURL != "" && !isAllowedProxyURL(s.Note.ProxyURL) {
		return ErrInvalidProxyURL
	}
	return nil
}

// isAllowedProxyURL 代理服务必须是 https 绝对地址
func isAllowedProxyURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("warn: invalid %s=%q, use default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("warn: invalid %s=%q, use default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		log.Printf("warn: invalid %s=%q, use default %s", key, v, def)
		return def
	}
	return d
}
