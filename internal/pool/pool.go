// Package pool 后台任务池，承载响应体获取和暂停请求处理
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spectral/internal/logger"
)

const reportInterval = 30 * time.Second

// Submitter 可以接收异步任务的执行器
type Submitter interface {
	// Submit 提交任务，返回 false 表示任务被拒绝且不会执行
	Submit(fn func()) bool
}

// Inline 在调用方协程中同步执行任务，用于测试和确定性回放
type Inline struct{}

// Submit 立即执行任务
func (Inline) Submit(fn func()) bool {
	fn()
	return true
}

// Stats 任务池计数
type Stats struct {
	Workers   int   `json:"workers"`
	QueueLen  int64 `json:"queue_len"`
	QueueCap  int64 `json:"queue_cap"`
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
}

// Pool 固定数量的 worker 消费有界队列，队列满或已停止时拒绝任务；
// size 不大于 0 时每个任务单独起协程
type Pool struct {
	size  int
	queue chan func()
	log   logger.Logger

	submitted atomic.Int64
	dropped   atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64

	mu      sync.RWMutex
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New 创建任务池，queueCap 不大于 0 时取 size*8
func New(size, queueCap int, l logger.Logger) *Pool {
	if l == nil {
		l = logger.NewNop()
	}
	p := &Pool{size: size, log: l, stop: make(chan struct{})}
	if size > 0 {
		if queueCap <= 0 {
			queueCap = size * 8
		}
		p.queue = make(chan func(), queueCap)
	}
	return p
}

// Start 启动 worker，ctx 取消或 Stop 后退出
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	go p.report(ctx)
}

// Stop 拒绝新任务并等待正在执行的任务结束，队列中未开始的任务被丢弃
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	if p.queue != nil {
		if n := len(p.queue); n > 0 {
			p.dropped.Add(int64(n))
			p.log.Debug("任务池停止，丢弃排队任务", "count", n)
		}
	}
}

// Submit 提交任务
func (p *Pool) Submit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	p.submitted.Add(1)
	if p.stopped {
		p.dropped.Add(1)
		return false
	}
	if p.queue == nil {
		go p.run(fn)
		return true
	}
	select {
	case p.queue <- fn:
		return true
	default:
		dropped := p.dropped.Add(1)
		p.log.Warn("任务池队列已满，任务被丢弃", "queueCap", cap(p.queue), "dropped", dropped)
		return false
	}
}

// Stats 当前计数
func (p *Pool) Stats() Stats {
	st := Stats{
		Workers:   p.size,
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
	if p.queue != nil {
		st.QueueLen = int64(len(p.queue))
		st.QueueCap = int64(cap(p.queue))
	}
	return st
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case fn := <-p.queue:
			p.run(fn)
		}
	}
}

// run 执行单个任务，任务 panic 不影响 worker
func (p *Pool) run(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.log.Error("后台任务异常", "panic", fmt.Sprint(r))
		}
		p.completed.Add(1)
	}()
	fn()
}

func (p *Pool) report(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			st := p.Stats()
			if st.Submitted == 0 {
				continue
			}
			p.log.Debug("任务池状态", "queueLen", st.QueueLen, "queueCap", st.QueueCap,
				"submitted", st.Submitted, "completed", st.Completed,
				"dropped", st.Dropped, "panicked", st.Panicked)
		}
	}
}
