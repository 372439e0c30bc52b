package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// 单次预热的最长等待时间
const warmTimeout = 2 * time.Minute

// Warmer 由缓存实现：为空或过期时刷新
type Warmer interface {
	Warm(ctx context.Context) error
}

type Scheduler struct {
	cron   *cron.Cron
	warmer Warmer
	// StartupDelay 启动后首轮预热的延迟
	StartupDelay time.Duration
}

func New(spec string, w Warmer) (*Scheduler, error) {
	// 上一轮还没结束时跳过本轮，避免预热任务堆积
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	s := &Scheduler{
		cron:         c,
		warmer:       w,
		StartupDelay: 15 * time.Second,
	}

	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮预热，避免与用户首次打开页面的请求争抢资源
	time.AfterFunc(s.StartupDelay, func() {
		go s.runOnce()
	})
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()

	start := time.Now()
	if err := s.warmer.Warm(ctx); err != nil {
		log.Printf("scheduler: warm error: %v", err)
		return
	}
	log.Printf("scheduler: warm done in %s", time.Since(start).Round(time.Millisecond))
}
