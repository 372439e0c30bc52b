package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LJTian/ArticleHub/internal/collector"
)

// 缺省值
const (
	TitlePlaceholder = "No Title"
	URLPlaceholder   = "#"
)

var (
	ErrShapeMismatch   = errors.New("raw item does not match its platform")
	ErrUnknownPlatform = errors.New("unknown platform")
)

// Article 统一后的文章结构；每轮聚合重新生成，生成后不再修改
type Article struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	URL         string             `json:"url"`
	Excerpt     string             `json:"excerpt"`
	PublishedAt time.Time          `json:"publishedAt"`
	Platform    collector.Platform `json:"platform"`
	Thumbnail   string             `json:"thumbnail,omitempty"`
	Category    Category           `json:"category,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
}

// Options 与具体平台相关的归一化参数
type Options struct {
	// NoteAssetHost 用于把 note 的相对图片路径改写为绝对地址
	NoteAssetHost string
}

// Processor 负责归一化与分类
type Processor struct {
	opts Options
}

func NewProcessor(opts Options) *Processor {
	return &Processor{opts: opts}
}

// Process 归一化并分类一批条目；形状不对的条目跳过并记日志
func (p *Processor) Process(items []collector.RawItem, runAt time.Time) []Article {
	out := make([]Article, 0, len(items))
	for _, it := range items {
		a, err := p.Normalize(it, runAt)
		if err != nil {
			log.Printf("processor: skip %s item #%d: %v", it.Platform, it.Index, err)
			continue
		}
		a.Category = Classify(a.Title, a.Excerpt)
		out = append(out, a)
	}
	return out
}

// Normalize 把单条原始记录映射为 Article，纯函数；runAt 作为缺失日期的兜底
func (p *Processor) Normalize(it collector.RawItem, runAt time.Time) (Article, error) {
	switch it.Platform {
	case collector.PlatformZenn:
		if it.Feed == nil {
			return Article{}, ErrShapeMismatch
		}
		return normalizeZenn(it.Index, *it.Feed, runAt), nil
	case collector.PlatformQiita:
		if it.Qiita == nil {
			return Article{}, ErrShapeMismatch
		}
		return normalizeQiita(it.Index, *it.Qiita, runAt), nil
	case collector.PlatformNote:
		if it.Feed == nil {
			return Article{}, ErrShapeMismatch
		}
		return normalizeNote(it.Index, *it.Feed, runAt, p.opts.NoteAssetHost), nil
	default:
		return Article{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, it.Platform)
	}
}

func normalizeZenn(index int, e collector.FeedEntry, runAt time.Time) Article {
	source := e.Description
	if strings.TrimSpace(source) == "" {
		source = e.Content
	}
	return Article{
		ID:          articleID(collector.PlatformZenn, index, e.GUID, e.Link),
		Title:       titleOrPlaceholder(e.Title),
		URL:         urlOrPlaceholder(e.Link),
		Excerpt:     excerpt(collapseSpaces(stripHTML(source))),
		PublishedAt: dateOrRun(e.Published, runAt),
		Platform:    collector.PlatformZenn,
		Thumbnail:   zennThumbnail(e),
	}
}

func zennThumbnail(e collector.FeedEntry) string {
	if u := absoluteOnly(e.EnclosureURL); u != "" {
		return u
	}
	return absoluteOnly(e.Thumbnail)
}

func normalizeQiita(index int, q collector.QiitaItem, runAt time.Time) Article {
	published := runAt
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(q.CreatedAt)); err == nil {
		published = t
	}

	var tags []string
	for _, t := range q.Tags {
		if name := strings.TrimSpace(t.Name); name != "" {
			tags = append(tags, name)
		}
	}

	return Article{
		ID:          articleID(collector.PlatformQiita, index, q.ID, q.URL),
		Title:       titleOrPlaceholder(q.Title),
		URL:         urlOrPlaceholder(q.URL),
		Excerpt:     excerpt(collapseSpaces(stripHTML(stripMarkdown(q.Body)))),
		PublishedAt: published.UTC(),
		Platform:    collector.PlatformQiita,
		Tags:        tags,
	}
}

func normalizeNote(index int, e collector.FeedEntry, runAt time.Time, assetHost string) Article {
	return Article{
		ID:          articleID(collector.PlatformNote, index, e.GUID, e.Link),
		Title:       titleOrPlaceholder(e.Title),
		URL:         urlOrPlaceholder(e.Link),
		Excerpt:     excerpt(collapseSpaces(stripHTML(e.Description))),
		PublishedAt: dateOrRun(e.Published, runAt),
		Platform:    collector.PlatformNote,
		Thumbnail:   rewriteAssetPath(noteThumbnail(e), assetHost),
	}
}

// noteThumbnail 依次尝试：显式缩略图、附件、content 中第一张图、description 中第一张图
func noteThumbnail(e collector.FeedEntry) string {
	for _, candidate := range []string{
		e.Thumbnail,
		e.EnclosureURL,
		firstImage(e.Content),
		firstImage(e.Description),
	} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return ""
}

// rewriteAssetPath 非绝对地址加上资源域名；协议相对地址补 https
func rewriteAssetPath(path, host string) string {
	switch {
	case path == "":
		return ""
	case isAbsoluteURL(path):
		return path
	case strings.HasPrefix(path, "//"):
		return "https:" + path
	case host == "":
		return ""
	}
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/")
}

// absoluteOnly 没有改写规则的平台只接受绝对地址
func absoluteOnly(u string) string {
	u = strings.TrimSpace(u)
	if isAbsoluteURL(u) {
		return u
	}
	return ""
}

func isAbsoluteURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")
}

// articleID 优先用源提供的稳定标识（GUID / 链接 / Qiita id），否则用平台 + 序号
func articleID(p collector.Platform, index int, stable ...string) string {
	prefix := strings.ToLower(string(p))
	for _, s := range stable {
		if s = strings.TrimSpace(s); s != "" {
			return prefix + "-" + hashURL(s)[:16]
		}
	}
	return fmt.Sprintf("%s-%d", prefix, index)
}

func titleOrPlaceholder(s string) string {
	s = collapseSpaces(s)
	if s == "" {
		return TitlePlaceholder
	}
	return s
}

func urlOrPlaceholder(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return URLPlaceholder
	}
	return s
}

func dateOrRun(t, runAt time.Time) time.Time {
	if t.IsZero() {
		return runAt.UTC()
	}
	return t.UTC()
}

func excerpt(s string) string {
	out, _ := truncateRunes(s, ExcerptLimit)
	return out
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}
