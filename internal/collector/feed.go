package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// parseFeed 直连拉取并解析 RSS/Atom，最多返回 maxItems 条
func parseFeed(ctx context.Context, feedURL string, maxItems int) ([]FeedEntry, error) {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	count := len(feed.Items)
	if count > maxItems {
		count = maxItems
	}

	entries := make([]FeedEntry, 0, count)
	for _, item := range feed.Items[:count] {
		if item == nil {
			continue
		}
		entries = append(entries, feedEntryFromItem(item))
	}
	return entries, nil
}

func feedEntryFromItem(item *gofeed.Item) FeedEntry {
	e := FeedEntry{
		GUID:        strings.TrimSpace(item.GUID),
		Title:       item.Title,
		Link:        strings.TrimSpace(item.Link),
		Description: item.Description,
		Content:     item.Content,
	}

	if item.PublishedParsed != nil {
		e.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		e.Published = *item.UpdatedParsed
	}

	if item.Image != nil && item.Image.URL != "" {
		e.Thumbnail = strings.TrimSpace(item.Image.URL)
	} else {
		e.Thumbnail = mediaThumbnail(item)
	}

	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			e.EnclosureURL = strings.TrimSpace(enc.URL)
			break
		}
	}
	return e
}

// mediaThumbnail 读取 <media:thumbnail>，note 把地址写在文本里，其他站点多写在 url 属性上
func mediaThumbnail(item *gofeed.Item) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media["thumbnail"] {
		if v := strings.TrimSpace(ext.Value); v != "" {
			return v
		}
		if v := strings.TrimSpace(ext.Attrs["url"]); v != "" {
			return v
		}
	}
	return ""
}

func feedRawItems(p Platform, entries []FeedEntry) []RawItem {
	out := make([]RawItem, 0, len(entries))
	for i := range entries {
		e := entries[i]
		out = append(out, RawItem{Platform: p, Index: i, Feed: &e})
	}
	return out
}
