package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnvWithDefault(t *testing.T) {
	const key = "TEST_APP_PORT"

	// 环境变量未设置时，应该返回默认值
	_ = os.Unsetenv(key)
	if got := getEnv(key, "9000"); got != "9000" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "9000")
	}

	// 环境变量设置后，应优先返回环境变量
	t.Setenv(key, "8080")
	if got := getEnv(key, "9000"); got != "8080" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "8080")
	}
}

func TestGetEnvTypedFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DUR", "soon")

	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvInt = %d, want 7", got)
	}
	if got := getEnvBool("TEST_BOOL", true); !got {
		t.Fatalf("getEnvBool = %t, want true", got)
	}
	if got := getEnvDuration("TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("getEnvDuration = %s, want 1m", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.AppPort != "9000" {
		t.Fatalf("AppPort = %q, want 9000", cfg.AppPort)
	}
	if cfg.Cache.Interval != time.Hour {
		t.Fatalf("Cache.Interval = %s, want 1h", cfg.Cache.Interval)
	}
	if cfg.Sources.Zenn.FeedURL != "https://zenn.dev/supermassu/feed" {
		t.Fatalf("unexpected zenn feed url: %q", cfg.Sources.Zenn.FeedURL)
	}
	if cfg.Sources.Qiita.Timeout != 15*time.Second {
		t.Fatalf("Qiita.Timeout = %s, want 15s", cfg.Sources.Qiita.Timeout)
	}
	if cfg.Sources.Note.Mode != NoteModeAuto {
		t.Fatalf("Note.Mode = %q, want auto", cfg.Sources.Note.Mode)
	}
	if cfg.Sources.Note.MaxItems != 20 {
		t.Fatalf("Note.MaxItems = %d, want 20", cfg.Sources.Note.MaxItems)
	}
}

func TestLoadReadsUsernamesAndPorts(t *testing.T) {
	t.Setenv("APP_PORT", "1234")
	t.Setenv("NOTE_USERNAME", "someone")
	t.Setenv("CACHE_INTERVAL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.AppPort != "1234" {
		t.Fatalf("AppPort = %q, want %q", cfg.AppPort, "1234")
	}
	if cfg.Sources.Note.FeedURL != "https://note.com/someone/rss" {
		t.Fatalf("note feed url not derived from username: %q", cfg.Sources.Note.FeedURL)
	}
	if cfg.Cache.Interval != 30*time.Minute {
		t.Fatalf("Cache.Interval = %s, want 30m", cfg.Cache.Interval)
	}
}

func TestLoadSourcesFileOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	doc := `sources:
  qiita:
    username: yaml-user
    max_items: 5
  note:
    mode: proxy
    timeout: 3s
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write sources file: %v", err)
	}
	t.Setenv("SOURCES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Sources.Qiita.Username != "yaml-user" || cfg.Sources.Qiita.MaxItems != 5 {
		t.Fatalf("qiita not overridden: %+v", cfg.Sources.Qiita)
	}
	// 文件中未出现的字段保持原值
	if cfg.Sources.Qiita.APIBase != "https://qiita.com/api/v2" {
		t.Fatalf("qiita api base lost: %q", cfg.Sources.Qiita.APIBase)
	}
	if cfg.Sources.Note.Mode != NoteModeProxy || cfg.Sources.Note.Timeout != 3*time.Second {
		t.Fatalf("note not overridden: %+v", cfg.Sources.Note)
	}
	if cfg.Sources.Note.AssetHost != "https://assets.st-note.com" {
		t.Fatalf("note asset host lost: %q", cfg.Sources.Note.AssetHost)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Cache: CacheConfig{Interval: time.Hour, MaxStale: 24 * time.Hour},
			Sources: SourcesConfig{
				Zenn:  FeedSource{Enabled: true, MaxItems: 20, Timeout: time.Second},
				Qiita: QiitaSource{Enabled: true, MaxItems: 20, Timeout: time.Second},
				Note: NoteSource{
					FeedSource: FeedSource{Enabled: true, MaxItems: 20, Timeout: time.Second},
					ProxyURL:   "https://api.rss2json.com/v1/api.json",
					Mode:       NoteModeAuto,
				},
			},
		}
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"ok", func(c *Config) {}, nil},
		{"no sources", func(c *Config) {
			c.Sources.Zenn.Enabled = false
			c.Sources.Qiita.Enabled = false
			c.Sources.Note.Enabled = false
		}, ErrNoSources},
		{"zero max items", func(c *Config) { c.Sources.Qiita.MaxItems = 0 }, ErrInvalidMaxItems},
		{"zero timeout", func(c *Config) { c.Sources.Zenn.Timeout = 0 }, ErrInvalidTimeout},
		{"zero interval", func(c *Config) { c.Cache.Interval = 0 }, ErrInvalidInterval},
		{"max stale below interval", func(c *Config) { c.Cache.MaxStale = time.Minute }, ErrInvalidMaxStale},
		{"bad mode", func(c *Config) { c.Sources.Note.Mode = "tunnel" }, ErrInvalidNoteMode},
		{"proxy mode without url", func(c *Config) {
			c.Sources.Note.Mode = NoteModeProxy
			c.Sources.Note.ProxyURL = ""
		}, ErrMissingNoteProxyURL},
		{"plain http proxy", func(c *Config) { c.Sources.Note.ProxyURL = "http://api.rss2json.com/v1/api.json" }, ErrInvalidProxyURL},
	}

	for _, tc := range cases {
		c := valid()
		tc.mutate(c)
		err := c.Validate()
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: Validate() = %v, want %v", tc.name, err, tc.want)
		}
	}
}
