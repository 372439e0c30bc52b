package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrProxyRejected 转换服务返回了非 ok 状态
var ErrProxyRejected = errors.New("feed proxy rejected request")

// ProxyResolver 通过 rss2json 之类的 feed→JSON 转换服务取 RSS，用于无法直连源站的环境
type ProxyResolver struct {
	Endpoint string
	Client   *http.Client
}

func NewProxyResolver(endpoint string) *ProxyResolver {
	return &ProxyResolver{Endpoint: endpoint}
}

type proxyResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Items   []json.RawMessage `json:"items"`
}

type proxyItem struct {
	Title       string `json:"title"`
	PubDate     string `json:"pubDate"`
	Link        string `json:"link"`
	GUID        string `json:"guid"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description"`
	Content     string `json:"content"`
	// 没有附件时服务返回 [] 而不是 {}，先按原始 JSON 接收
	Enclosure json.RawMessage `json:"enclosure"`
}

type proxyEnclosure struct {
	Link      string `json:"link"`
	Type      string `json:"type"`
	Thumbnail string `json:"thumbnail"`
}

// Resolve 返回 feedURL 对应的条目，最多 maxItems 条
func (p *ProxyResolver) Resolve(ctx context.Context, feedURL string, maxItems int) ([]FeedEntry, error) {
	sep := "?"
	if strings.Contains(p.Endpoint, "?") {
		sep = "&"
	}
	reqURL := p.Endpoint + sep + "rss_url=" + url.QueryEscape(feedURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("proxy: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy: unexpected status %d", resp.StatusCode)
	}

	var data proxyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&data); err != nil {
		return nil, fmt.Errorf("proxy: decode response: %w", err)
	}
	if data.Status != "ok" {
		return nil, fmt.Errorf("%w: status=%q message=%q", ErrProxyRejected, data.Status, data.Message)
	}

	if len(data.Items) > maxItems {
		data.Items = data.Items[:maxItems]
	}

	entries := make([]FeedEntry, 0, len(data.Items))
	for i, raw := range data.Items {
		var it proxyItem
		if err := json.Unmarshal(raw, &it); err != nil {
			log.Printf("proxy: skip malformed item #%d: %v", i, err)
			continue
		}
		entries = append(entries, it.toFeedEntry())
	}
	return entries, nil
}

func (it proxyItem) toFeedEntry() FeedEntry {
	e := FeedEntry{
		GUID:        strings.TrimSpace(it.GUID),
		Title:       it.Title,
		Link:        strings.TrimSpace(it.Link),
		Description: it.Description,
		Content:     it.Content,
		Published:   parseProxyDate(it.PubDate),
		Thumbnail:   strings.TrimSpace(it.Thumbnail),
	}

	var enc proxyEnclosure
	if len(it.Enclosure) > 0 && json.Unmarshal(it.Enclosure, &enc) == nil {
		e.EnclosureURL = strings.TrimSpace(enc.Link)
		if e.Thumbnail == "" {
			e.Thumbnail = strings.TrimSpace(enc.Thumbnail)
		}
	}
	return e
}

// rss2json 输出 "2006-01-02 15:04:05"（UTC），兼容其他常见格式
var proxyDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
}

func parseProxyDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range proxyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
