package collector

import (
	"context"
	"log"
	"time"
)

// ZennFetcher 通过用户 RSS 拉取 Zenn 文章
type ZennFetcher struct {
	FeedURL  string
	MaxItems int
	Timeout  time.Duration
}

func (z *ZennFetcher) Name() string {
	return "zenn_feed"
}

func (z *ZennFetcher) Platform() Platform {
	return PlatformZenn
}

func (z *ZennFetcher) Fetch(ctx context.Context) ([]RawItem, error) {
	log.Printf("zenn: fetch %s ...", z.FeedURL)

	if z.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, z.Timeout)
		defer cancel()
	}

	entries, err := parseFeed(ctx, z.FeedURL, z.MaxItems)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		log.Println("zenn: feed has no items")
	}
	return feedRawItems(PlatformZenn, entries), nil
}
