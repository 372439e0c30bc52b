package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LJTian/ArticleHub/internal/config"
)

// NoteFetcher 拉取 note 的 RSS。直连失败时（例如无法跨域的环境）走转换代理
type NoteFetcher struct {
	FeedURL  string
	// Mode 取值见 config.NoteMode*，为空按 auto 处理
	Mode     string
	Proxy    *ProxyResolver
	MaxItems int
	Timeout  time.Duration
}

func (n *NoteFetcher) Name() string {
	return "note_feed"
}

func (n *NoteFetcher) Platform() Platform {
	return PlatformNote
}

func (n *NoteFetcher) Fetch(ctx context.Context) ([]RawItem, error) {
	log.Printf("note: fetch %s (mode=%s) ...", n.FeedURL, n.Mode)

	var (
		entries []FeedEntry
		err     error
	)
	switch n.Mode {
	case config.NoteModeProxy:
		entries, err = n.viaProxy(ctx)
	case config.NoteModeDirect:
		entries, err = n.direct(ctx)
	default:
		// 直连与代理各自计时，直连慢失败不会挤占代理的时间
		entries, err = n.direct(ctx)
		if err != nil && n.Proxy != nil && ctx.Err() == nil {
			log.Printf("note: direct fetch failed, fallback to proxy: %v", err)
			entries, err = n.viaProxy(ctx)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("note: %w", err)
	}

	if len(entries) == 0 {
		log.Println("note: feed has no items")
	}
	return feedRawItems(PlatformNote, entries), nil
}

func (n *NoteFetcher) direct(ctx context.Context) ([]FeedEntry, error) {
	ctx, cancel := n.attemptContext(ctx)
	defer cancel()
	return parseFeed(ctx, n.FeedURL, n.MaxItems)
}

func (n *NoteFetcher) viaProxy(ctx context.Context) ([]FeedEntry, error) {
	if n.Proxy == nil {
		return nil, errors.New("proxy not configured")
	}
	ctx, cancel := n.attemptContext(ctx)
	defer cancel()
	return n.Proxy.Resolve(ctx, n.FeedURL, n.MaxItems)
}

// attemptContext 每次尝试单独使用 Timeout
func (n *NoteFetcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.Timeout > 0 {
		return context.WithTimeout(ctx, n.Timeout)
	}
	return context.WithCancel(ctx)
}
