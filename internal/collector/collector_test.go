package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LJTian/ArticleHub/internal/config"
)

const zennFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Zenn</title>
  <link>https://zenn.dev/someone</link>
  <item>
    <title>First post</title>
    <link>https://zenn.dev/someone/articles/first</link>
    <guid>https://zenn.dev/someone/articles/first</guid>
    <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
    <description><![CDATA[<p>Hello <b>world</b></p>]]></description>
    <enclosure url="https://res.cloudinary.com/zenn/og/first.png" length="0" type="image/png"/>
  </item>
  <item>
    <title>Second post</title>
    <link>https://zenn.dev/someone/articles/second</link>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    <description>plain</description>
  </item>
  <item>
    <title>Third post</title>
    <link>https://zenn.dev/someone/articles/third</link>
  </item>
</channel>
</rss>`

const noteFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
  <title>note</title>
  <link>https://note.com/someone</link>
  <item>
    <title>note post</title>
    <link>https://note.com/someone/n/n123</link>
    <guid>https://note.com/someone/n/n123</guid>
    <pubDate>Wed, 03 Jan 2024 09:00:00 +0900</pubDate>
    <description><![CDATA[<p>body</p>]]></description>
    <media:thumbnail>/production/uploads/images/x.png</media:thumbnail>
  </item>
</channel>
</rss>`

func serveString(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestZennFetcherParsesFeedAndCapsItems(t *testing.T) {
	srv := serveString(t, "application/rss+xml", zennFeedXML)

	f := &ZennFetcher{FeedURL: srv.URL, MaxItems: 2, Timeout: 5 * time.Second}
	items, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items (capped), got %d", len(items))
	}

	first := items[0]
	if first.Platform != PlatformZenn || first.Feed == nil || first.Qiita != nil {
		t.Fatalf("unexpected raw item shape: %+v", first)
	}
	if first.Feed.Title != "First post" {
		t.Fatalf("title = %q", first.Feed.Title)
	}
	if first.Feed.EnclosureURL != "https://res.cloudinary.com/zenn/og/first.png" {
		t.Fatalf("enclosure = %q", first.Feed.EnclosureURL)
	}
	if first.Feed.Published.IsZero() {
		t.Fatalf("published date should be parsed")
	}
	if items[1].Index != 1 {
		t.Fatalf("second item index = %d, want 1", items[1].Index)
	}
}

func TestZennFetcherMissingDateLeavesZero(t *testing.T) {
	srv := serveString(t, "application/rss+xml", zennFeedXML)

	f := &ZennFetcher{FeedURL: srv.URL, MaxItems: 10, Timeout: 5 * time.Second}
	items, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if !items[2].Feed.Published.IsZero() {
		t.Fatalf("item without pubDate should have zero time, got %v", items[2].Feed.Published)
	}
}

func TestZennFetcherReturnsErrorOnGarbage(t *testing.T) {
	srv := serveString(t, "text/plain", "definitely not a feed")

	f := &ZennFetcher{FeedURL: srv.URL, MaxItems: 10, Timeout: 5 * time.Second}
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for non-feed body")
	}
}

func TestZennFetcherTimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	f := &ZennFetcher{FeedURL: srv.URL, MaxItems: 10, Timeout: 50 * time.Millisecond}
	start := time.Now()
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not respected: %s", time.Since(start))
	}
}

func TestQiitaFetcherSkipsMalformedItems(t *testing.T) {
	var gotQuery, gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id":"a1","title":"Go tips","url":"https://qiita.com/u/items/a1","body":"# Head\nbody","created_at":"2024-01-02T10:00:00+09:00","tags":[{"name":"Go"}]},
			"not an object",
			{"id":"a2","title":"Second","url":"https://qiita.com/u/items/a2","body":"x","created_at":"2024-01-01T10:00:00+09:00","tags":[]},
			{}
		]`)
	}))
	defer srv.Close()

	f := &QiitaFetcher{APIBase: srv.URL + "/api/v2", Username: "u", Token: "secret", MaxItems: 10, Timeout: 5 * time.Second}
	items, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 valid items, got %d", len(items))
	}
	if items[0].Qiita.ID != "a1" || items[1].Qiita.ID != "a2" {
		t.Fatalf("unexpected ids: %q %q", items[0].Qiita.ID, items[1].Qiita.ID)
	}
	if items[1].Index != 1 {
		t.Fatalf("index should count surviving items, got %d", items[1].Index)
	}
	if items[0].Qiita.Tags[0].Name != "Go" {
		t.Fatalf("tags not decoded: %+v", items[0].Qiita.Tags)
	}
	if gotPath != "/api/v2/users/u/items" {
		t.Fatalf("path = %q", gotPath)
	}
	if !strings.Contains(gotQuery, "per_page=10") {
		t.Fatalf("per_page missing from query: %q", gotQuery)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
}

func TestQiitaFetcherRejectsNonArray(t *testing.T) {
	srv := serveString(t, "application/json", `{"message":"Rate limit exceeded","type":"rate_limit_exceeded"}`)

	f := &QiitaFetcher{APIBase: srv.URL, Username: "u", MaxItems: 10, Timeout: 5 * time.Second}
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for non-array payload")
	}
}

func TestQiitaFetcherRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := &QiitaFetcher{APIBase: srv.URL, Username: "u", MaxItems: 10, Timeout: 5 * time.Second}
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for 403")
	}
}

func TestQiitaListURLClampsPerPage(t *testing.T) {
	f := &QiitaFetcher{APIBase: "https://qiita.com/api/v2/", Username: "rancorder", MaxItems: 500}
	got := f.listURL()
	want := "https://qiita.com/api/v2/users/rancorder/items?page=1&per_page=100"
	if got != want {
		t.Fatalf("listURL() = %q, want %q", got, want)
	}
}

func TestProxyResolverMapsItems(t *testing.T) {
	var gotRSS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRSS = r.URL.Query().Get("rss_url")
		fmt.Fprint(w, `{"status":"ok","items":[
			{"title":"with enclosure","pubDate":"2024-01-03 00:00:00","link":"https://note.com/u/n/1","guid":"g1","thumbnail":"","description":"<p>d</p>","content":"","enclosure":{"link":"https://assets.st-note.com/a.png","type":"image/png"}},
			{"title":"array enclosure","pubDate":"bogus","link":"https://note.com/u/n/2","guid":"g2","thumbnail":"/images/x.png","description":"","content":"","enclosure":[]},
			42
		]}`)
	}))
	defer srv.Close()

	p := NewProxyResolver(srv.URL)
	entries, err := p.Resolve(context.Background(), "https://note.com/u/rss", 10)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if gotRSS != "https://note.com/u/rss" {
		t.Fatalf("rss_url = %q", gotRSS)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	want := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	if !entries[0].Published.Equal(want) {
		t.Fatalf("published = %v, want %v", entries[0].Published, want)
	}
	if entries[0].EnclosureURL != "https://assets.st-note.com/a.png" {
		t.Fatalf("enclosure = %q", entries[0].EnclosureURL)
	}
	if entries[1].EnclosureURL != "" || entries[1].Thumbnail != "/images/x.png" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if !entries[1].Published.IsZero() {
		t.Fatalf("bogus date should yield zero time")
	}
}

func TestProxyResolverRejectsErrorStatus(t *testing.T) {
	srv := serveString(t, "application/json", `{"status":"error","message":"Cannot download this RSS feed"}`)

	_, err := NewProxyResolver(srv.URL).Resolve(context.Background(), "https://note.com/u/rss", 10)
	if !errors.Is(err, ErrProxyRejected) {
		t.Fatalf("expected ErrProxyRejected, got %v", err)
	}
}

func TestNoteFetcherDirectAndProxyAgree(t *testing.T) {
	feed := serveString(t, "application/rss+xml", noteFeedXML)
	proxy := serveString(t, "application/json", `{"status":"ok","items":[
		{"title":"note post","pubDate":"2024-01-03 00:00:00","link":"https://note.com/someone/n/n123","guid":"https://note.com/someone/n/n123","thumbnail":"/production/uploads/images/x.png","description":"<p>body</p>","content":"","enclosure":[]}
	]}`)

	direct := &NoteFetcher{FeedURL: feed.URL, Mode: config.NoteModeDirect, MaxItems: 10, Timeout: 5 * time.Second}
	viaProxy := &NoteFetcher{FeedURL: feed.URL, Mode: config.NoteModeProxy, Proxy: NewProxyResolver(proxy.URL), MaxItems: 10, Timeout: 5 * time.Second}

	d, err := direct.Fetch(context.Background())
	if err != nil {
		t.Fatalf("direct Fetch error: %v", err)
	}
	p, err := viaProxy.Fetch(context.Background())
	if err != nil {
		t.Fatalf("proxy Fetch error: %v", err)
	}
	if len(d) != 1 || len(p) != 1 {
		t.Fatalf("expected one item each, got %d / %d", len(d), len(p))
	}
	de, pe := *d[0].Feed, *p[0].Feed
	if de.GUID != pe.GUID || de.Title != pe.Title || de.Link != pe.Link || de.Thumbnail != pe.Thumbnail {
		t.Fatalf("direct and proxy entries differ:\n%+v\n%+v", de, pe)
	}
	if !de.Published.Equal(pe.Published) {
		t.Fatalf("published differ: %v vs %v", de.Published, pe.Published)
	}
}

func TestNoteFetcherAutoFallsBackToProxy(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer broken.Close()
	proxy := serveString(t, "application/json", `{"status":"ok","items":[{"title":"t","link":"https://note.com/u/n/1","pubDate":"2024-01-03 00:00:00","enclosure":{}}]}`)

	f := &NoteFetcher{FeedURL: broken.URL, Mode: config.NoteModeAuto, Proxy: NewProxyResolver(proxy.URL), MaxItems: 10, Timeout: 5 * time.Second}
	items, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 1 || items[0].Platform != PlatformNote {
		t.Fatalf("expected 1 note item from proxy, got %+v", items)
	}
}

func TestNoteFetcherFallbackGetsItsOwnTimeout(t *testing.T) {
	// 直连在超时前一刻才失败，代理也需要一段时间，两者加起来超过单次 Timeout
	slowBroken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer slowBroken.Close()
	slowProxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","items":[{"title":"t","link":"https://note.com/u/n/1","pubDate":"2024-01-03 00:00:00"}]}`)
	}))
	defer slowProxy.Close()

	f := &NoteFetcher{FeedURL: slowBroken.URL, Mode: config.NoteModeAuto, Proxy: NewProxyResolver(slowProxy.URL), MaxItems: 10, Timeout: 200 * time.Millisecond}
	items, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fallback should have its own budget, got error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item from proxy, got %d", len(items))
	}
}

func TestNoteFetcherNoFallbackAfterCallerCancel(t *testing.T) {
	var proxyHits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		fmt.Fprint(w, `{"status":"ok","items":[]}`)
	}))
	defer proxy.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &NoteFetcher{FeedURL: "http://127.0.0.1:1/rss", Mode: config.NoteModeAuto, Proxy: NewProxyResolver(proxy.URL), MaxItems: 10, Timeout: time.Second}
	if _, err := f.Fetch(ctx); err == nil {
		t.Fatalf("expected error for cancelled caller")
	}
	if n := proxyHits.Load(); n != 0 {
		t.Fatalf("proxy should not be tried after caller cancel, hits=%d", n)
	}
}

func TestNoteFetcherProxyModeWithoutProxyFails(t *testing.T) {
	f := &NoteFetcher{FeedURL: "https://note.com/u/rss", Mode: config.NoteModeProxy, MaxItems: 10}
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error when proxy is not configured")
	}
}

func TestOGImageResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/with":
			fmt.Fprint(w, `<html><head><meta property="og:image" content="/og/cover.png"><meta name="twitter:image" content="https://cdn.example.com/tw.png"></head><body></body></html>`)
		case "/twitter":
			fmt.Fprint(w, `<html><head><meta name="twitter:image" content="https://cdn.example.com/tw.png"></head></html>`)
		default:
			fmt.Fprint(w, `<html><head><title>none</title></head></html>`)
		}
	}))
	defer srv.Close()

	r := NewOGImageResolver(5 * time.Second)

	got, err := r.Resolve(srv.URL + "/with")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got != srv.URL+"/og/cover.png" {
		t.Fatalf("og:image = %q, want absolute url", got)
	}

	got, err = r.Resolve(srv.URL + "/twitter")
	if err != nil || got != "https://cdn.example.com/tw.png" {
		t.Fatalf("twitter fallback = %q, %v", got, err)
	}

	got, err = r.Resolve(srv.URL + "/none")
	if err != nil || got != "" {
		t.Fatalf("expected empty result, got %q, %v", got, err)
	}

	if _, err := r.Resolve("#"); err == nil {
		t.Fatalf("expected error for non-absolute url")
	}
}

func TestPlatformValid(t *testing.T) {
	for _, p := range []Platform{PlatformZenn, PlatformQiita, PlatformNote} {
		if !p.Valid() {
			t.Fatalf("%q should be valid", p)
		}
	}
	if Platform("Medium").Valid() {
		t.Fatalf("unknown platform must be invalid")
	}
}
