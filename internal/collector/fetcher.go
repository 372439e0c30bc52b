package collector

import (
	"context"
	"time"
)

// Platform 文章来源平台，取值封闭
type Platform string

const (
	PlatformZenn  Platform = "Zenn"
	PlatformQiita Platform = "Qiita"
	PlatformNote  Platform = "note"
)

// Valid 判断平台是否在枚举之内
func (p Platform) Valid() bool {
	switch p {
	case PlatformZenn, PlatformQiita, PlatformNote:
		return true
	}
	return false
}

// RawItem 采集后、归一化前的条目。Feed 与 Qiita 恰好有一个非空，由 Platform 决定
type RawItem struct {
	Platform Platform
	// Index 为该条目在本次采集结果中的位置，用于无稳定 ID 时生成 ID
	Index int
	Feed  *FeedEntry
	Qiita *QiitaItem
}

// FeedEntry RSS 条目（Zenn / note），直连与代理两条路径都产出这个结构
type FeedEntry struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	// Published 为零值表示源中没有日期
	Published    time.Time
	Thumbnail    string
	EnclosureURL string
}

// QiitaItem 对应 Qiita v2 列表接口中的单条记录
type QiitaItem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Body       string     `json:"body"`
	CreatedAt  string     `json:"created_at"`
	Tags       []QiitaTag `json:"tags"`
	LikesCount int        `json:"likes_count"`
}

type QiitaTag struct {
	Name string `json:"name"`
}

// Fetcher 抽象每一个数据源
type Fetcher interface {
	Name() string
	Platform() Platform
	Fetch(ctx context.Context) ([]RawItem, error)
}

// userAgent 部分站点会拒绝空 UA
const userAgent = "ArticleHubBot/1.0"

const maxResponseBytes = 4 << 20 // 4MB
