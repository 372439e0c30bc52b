package aggregator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LJTian/ArticleHub/internal/collector"
	"github.com/LJTian/ArticleHub/internal/processor"
	"github.com/google/uuid"
)

// 缩略图补全的并发上限，避免同时打开过多页面
const backfillConcurrency = 4

// SourceReport 单个数据源在一轮聚合中的结果
type SourceReport struct {
	Name     string             `json:"name"`
	Platform collector.Platform `json:"platform"`
	Count    int                `json:"count"`
	Error    string             `json:"error,omitempty"`
	Duration time.Duration      `json:"duration"`
}

func (r SourceReport) Failed() bool {
	return r.Error != ""
}

// Batch 一轮聚合的完整产物，生成后只读
type Batch struct {
	RunID       string              `json:"runId"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Articles    []processor.Article `json:"articles"`
	Sources     []SourceReport      `json:"sources"`
}

// AllFailed 所有数据源都失败（没有数据源时不算失败）
func (b *Batch) AllFailed() bool {
	if b == nil || len(b.Sources) == 0 {
		return false
	}
	for _, s := range b.Sources {
		if !s.Failed() {
			return false
		}
	}
	return true
}

// ThumbnailResolver 为缺少缩略图的文章查找封面图
type ThumbnailResolver interface {
	Resolve(pageURL string) (string, error)
}

// RunRecorder 记录每一轮聚合的执行情况
type RunRecorder interface {
	RecordRun(ctx context.Context, b *Batch) error
}

type Aggregator struct {
	fetchers   []collector.Fetcher
	processor  *processor.Processor
	thumbnails ThumbnailResolver
	recorder   RunRecorder
	now        func() time.Time
}

type Option func(*Aggregator)

// WithThumbnailResolver 开启缩略图补全
func WithThumbnailResolver(r ThumbnailResolver) Option {
	return func(a *Aggregator) { a.thumbnails = r }
}

func WithRecorder(r RunRecorder) Option {
	return func(a *Aggregator) { a.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func New(fetchers []collector.Fetcher, p *processor.Processor, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetchers:  fetchers,
		processor: p,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type taskResult struct {
	items    []collector.RawItem
	err      error
	duration time.Duration
}

// Run 并发执行所有数据源，等待全部结束后合并、排序。
// 单个数据源失败、超时或 panic 只会让它的贡献为空，Run 本身不返回错误。
func (a *Aggregator) Run(ctx context.Context) *Batch {
	start := time.Now()
	batch := &Batch{
		RunID:       uuid.NewString(),
		GeneratedAt: a.now().UTC(),
		Sources:     make([]SourceReport, 0, len(a.fetchers)),
	}
	log.Printf("aggregator: run %s start, sources=%d", batch.RunID, len(a.fetchers))

	results := make([]chan taskResult, len(a.fetchers))
	for i, f := range a.fetchers {
		ch := make(chan taskResult, 1)
		results[i] = ch
		go runTask(ctx, f, ch)
	}

	// 按数据源注册顺序拼接，之后的稳定排序依赖这个顺序
	articles := make([]processor.Article, 0)
	for i, ch := range results {
		f := a.fetchers[i]
		r := <-ch
		report := SourceReport{
			Name:     f.Name(),
			Platform: f.Platform(),
			Duration: r.duration,
		}
		if r.err != nil {
			report.Error = r.err.Error()
			log.Printf("aggregator: %s failed after %s: %v", report.Name, r.duration, r.err)
		} else {
			normalized := a.processor.Process(r.items, batch.GeneratedAt)
			report.Count = len(normalized)
			articles = append(articles, normalized...)
			log.Printf("aggregator: %s fetched=%d normalized=%d in %s", report.Name, len(r.items), report.Count, r.duration)
		}
		batch.Sources = append(batch.Sources, report)
	}

	uniqueIDs(articles)
	a.backfillThumbnails(articles)
	sortByPublishedDesc(articles)
	batch.Articles = articles

	log.Printf("aggregator: run %s done, articles=%d took=%s", batch.RunID, len(articles), time.Since(start))

	if a.recorder != nil {
		if err := a.recorder.RecordRun(ctx, batch); err != nil {
			log.Printf("aggregator: record run %s: %v", batch.RunID, err)
		}
	}
	return batch
}

// runTask 保证每个任务恰好往 out 写一次结果，panic 也会被转换为错误
func runTask(ctx context.Context, f collector.Fetcher, out chan<- taskResult) {
	start := time.Now()
	var res taskResult
	defer func() {
		if r := recover(); r != nil {
			res = taskResult{err: fmt.Errorf("panic: %v", r)}
		}
		res.duration = time.Since(start)
		out <- res
	}()

	items, err := f.Fetch(ctx)
	if err != nil {
		res.err = err
		return
	}
	res.items = items
}

// uniqueIDs 同一轮内重复的 id 追加序号后缀
func uniqueIDs(articles []processor.Article) {
	seen := make(map[string]int, len(articles))
	for i := range articles {
		id := articles[i].ID
		seen[id]++
		if n := seen[id]; n > 1 {
			candidate := fmt.Sprintf("%s-%d", id, n)
			for seen[candidate] > 0 {
				n++
				candidate = fmt.Sprintf("%s-%d", id, n)
			}
			seen[id] = n
			seen[candidate]++
			articles[i].ID = candidate
		}
	}
}

func sortByPublishedDesc(articles []processor.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
}

func (a *Aggregator) backfillThumbnails(articles []processor.Article) {
	if a.thumbnails == nil {
		return
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, backfillConcurrency)
	)
	for i := range articles {
		if articles[i].Thumbnail != "" || !strings.HasPrefix(articles[i].URL, "http") {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		// 每个 goroutine 只写自己下标的元素，不需要加锁
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			u, err := a.thumbnails.Resolve(articles[i].URL)
			if err != nil {
				log.Printf("aggregator: thumbnail %s: %v", articles[i].URL, err)
				return
			}
			if strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") {
				articles[i].Thumbnail = u
			}
		}(i)
	}
	wg.Wait()
}
