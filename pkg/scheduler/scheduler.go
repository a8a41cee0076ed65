package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Scheduler 运行基于 ticker 的后台任务，Stop 会等待所有任务退出
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	return NewWithContext(context.Background())
}

func NewWithContext(parent context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Every 每隔 d 执行一次 job；immediate 为 true 时先立即执行一次
func (s *Scheduler) Every(d time.Duration, immediate bool, job Job) {
	s.wg.Add(1)
	go s.loopEvery(d, immediate, job)
}

func (s *Scheduler) loopEvery(d time.Duration, immediate bool, job Job) {
	defer s.wg.Done()
	if immediate {
		job.Run(s.ctx)
	}
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			job.Run(s.ctx)
		}
	}
}
