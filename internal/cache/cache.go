package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/LJTian/ArticleHub/internal/aggregator"
	"golang.org/x/sync/singleflight"
)

// State 缓存当前所处的状态
type State string

const (
	StateEmpty      State = "EMPTY"
	StateFresh      State = "FRESH"
	StateStale      State = "STALE"
	StateRefreshing State = "REFRESHING"
)

// Status 单次读取观察到的结果，对应响应头 X-Cache
type Status string

const (
	StatusHit   Status = "HIT"
	StatusStale Status = "STALE"
	StatusMiss  Status = "MISS"
)

// 全局只有一个 key：整个管道共享一份批次
const batchKey = "articles"

var ErrNoLoader = errors.New("cache: loader is nil")

// Loader 生成一份新批次，通常是 Aggregator.Run
type Loader func(ctx context.Context) (*aggregator.Batch, error)

// Snapshot 二级快照（Redis），用于进程重启后的预热
type Snapshot interface {
	LoadSnapshot(ctx context.Context) (*aggregator.Batch, error)
	SaveSnapshot(ctx context.Context, b *aggregator.Batch) error
}

type Options struct {
	// Interval 批次保持 FRESH 的时长
	Interval time.Duration
	// MaxStale 刷新持续失败时，旧批次最多保留的时长
	MaxStale time.Duration
	// MaxFailures 连续失败多少次后丢弃旧批次
	MaxFailures int
	// RetryDelay 一次刷新失败后，至少间隔多久才允许下一次刷新
	RetryDelay time.Duration
	Snapshot   Snapshot
	Now        func() time.Time
}

type Cache struct {
	load  Loader
	opts  Options
	group singleflight.Group
	seed  sync.Once

	mu       sync.Mutex
	batch    *aggregator.Batch
	storedAt time.Time
	failures int
	// lastFailure 最近一次刷新失败（或装入全失败批次）的时间
	lastFailure time.Time
	// inflight 非空表示后台刷新进行中，刷新结束时关闭
	inflight chan struct{}
}

func New(load Loader, opts Options) *Cache {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = max(time.Minute, opts.Interval/10)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{load: load, opts: opts}
}

// Get 返回当前批次：
//   - FRESH 直接返回（HIT）
//   - STALE 立即返回旧批次，没有刷新进行中且距上次失败超过 RetryDelay 时启动一次后台刷新（STALE）
//   - 没有批次时同步加载，并发调用方共享同一次加载（MISS）
func (c *Cache) Get(ctx context.Context) (*aggregator.Batch, Status, error) {
	c.seed.Do(c.seedFromSnapshot)

	c.mu.Lock()
	b := c.batch
	if b == nil {
		c.mu.Unlock()
		b, err := c.loadCold(ctx)
		return b, StatusMiss, err
	}
	now := c.opts.Now()
	if now.Sub(c.storedAt) < c.opts.Interval {
		c.mu.Unlock()
		return b, StatusHit, nil
	}
	if c.inflight == nil && now.Sub(c.lastFailure) >= c.opts.RetryDelay {
		c.inflight = make(chan struct{})
		go c.refresh(c.inflight)
	}
	c.mu.Unlock()
	return b, StatusStale, nil
}

// Warm 供定时任务调用：缓存为空或已过期时刷新，并等待刷新完成
func (c *Cache) Warm(ctx context.Context) error {
	_, status, err := c.Get(ctx)
	if err != nil {
		return err
	}
	if status == StatusStale {
		c.Wait(ctx)
	}
	return nil
}

// Wait 等待进行中的后台刷新结束
func (c *Cache) Wait(ctx context.Context) {
	c.mu.Lock()
	done := c.inflight
	c.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// State 返回当前状态，仅用于观测
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.batch == nil:
		return StateEmpty
	case c.inflight != nil:
		return StateRefreshing
	case c.opts.Now().Sub(c.storedAt) < c.opts.Interval:
		return StateFresh
	default:
		return StateStale
	}
}

// loadCold 冷启动加载。加载本身不受调用方 ctx 影响，调用方取消只是不再等待
func (c *Cache) loadCold(ctx context.Context) (*aggregator.Batch, error) {
	ch := c.group.DoChan(batchKey, func() (any, error) {
		c.mu.Lock()
		if b := c.batch; b != nil {
			c.mu.Unlock()
			return b, nil
		}
		c.mu.Unlock()

		b, err := c.runLoader()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.installLocked(b)
		c.mu.Unlock()
		if !b.AllFailed() {
			c.saveSnapshot(b)
		}
		return b, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*aggregator.Batch), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) refresh(done chan struct{}) {
	defer close(done)

	b, err := c.runLoader()

	c.mu.Lock()
	c.inflight = nil
	replaced := false
	switch {
	case err == nil && !c.degradesLocked(b):
		c.installLocked(b)
		replaced = !b.AllFailed()
	default:
		c.failures++
		c.lastFailure = c.opts.Now()
		age := c.opts.Now().Sub(c.storedAt)
		if err == nil {
			err = errors.New("all sources failed")
		}
		log.Printf("cache: refresh failed (%d/%d, batch age %s): %v", c.failures, c.opts.MaxFailures, age.Round(time.Second), err)

		if c.failures >= c.opts.MaxFailures || (c.opts.MaxStale > 0 && age >= c.opts.MaxStale) {
			log.Printf("cache: dropping stale batch %s", c.batch.RunID)
			if b != nil {
				c.installLocked(b)
			} else {
				c.batch = nil
				c.failures = 0
			}
		}
	}
	c.mu.Unlock()

	if replaced {
		c.saveSnapshot(b)
	}
}

// degradesLocked 新批次全部数据源失败、而旧批次仍有内容时，视为刷新失败
func (c *Cache) degradesLocked(b *aggregator.Batch) bool {
	return b.AllFailed() && c.batch != nil && len(c.batch.Articles) > 0
}

// runLoader 刷新使用独立的 context，不随任何请求取消
func (c *Cache) runLoader() (b *aggregator.Batch, err error) {
	if c.load == nil {
		return nil, ErrNoLoader
	}
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, errors.New("cache: loader panicked")
			log.Printf("cache: loader panic: %v", r)
		}
	}()
	b, err = c.load(context.Background())
	if err == nil && b == nil {
		err = errors.New("cache: loader returned nil batch")
	}
	return b, err
}

// installLocked 装入新批次。全部数据源失败的批次直接记为过期，
// 等 RetryDelay 过后的下一次请求重新验证，不会以 FRESH 停留一个 Interval
func (c *Cache) installLocked(b *aggregator.Batch) {
	now := c.opts.Now()
	c.batch = b
	c.storedAt = now
	c.failures = 0
	if b.AllFailed() {
		c.storedAt = now.Add(-c.opts.Interval)
		c.lastFailure = now
	}
}

func (c *Cache) seedFromSnapshot() {
	if c.opts.Snapshot == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	b, err := c.opts.Snapshot.LoadSnapshot(ctx)
	if err != nil {
		log.Printf("cache: load snapshot: %v", err)
		return
	}
	if b == nil {
		return
	}
	if c.opts.MaxStale > 0 && c.opts.Now().Sub(b.GeneratedAt) >= c.opts.MaxStale {
		log.Printf("cache: snapshot %s too old, ignored", b.RunID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batch == nil {
		c.batch = b
		// 快照按生成时间计算新鲜度，过期的快照会立即触发刷新
		c.storedAt = b.GeneratedAt
		log.Printf("cache: seeded from snapshot %s (%d articles)", b.RunID, len(b.Articles))
	}
}

func (c *Cache) saveSnapshot(b *aggregator.Batch) {
	if c.opts.Snapshot == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.opts.Snapshot.SaveSnapshot(ctx, b); err != nil {
		log.Printf("cache: save snapshot: %v", err)
	}
}
