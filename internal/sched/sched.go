// Package sched 提供可取消的定时任务调度
//
// 所有周期任务（规则评估、清扫、健康检查）和一次性任务（升级链）
// 都经由 Scheduler 创建，时钟可注入 clock.Mock 以便测试中虚拟推进时间。
package sched

import (
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler 定时任务调度器
type Scheduler struct {
	clk clock.Clock

	mu      sync.Mutex
	tasks   map[*Task]struct{}
	stopped atomic.Bool

	// gate 保证 Stop 返回后不再有任务体在执行：
	// 任务体持读锁运行，Stop 最后取写锁等待在途任务结束。
	gate sync.RWMutex

	wg sync.WaitGroup
}

// Task 一个已调度的任务句柄
type Task struct {
	name   string
	sched  *Scheduler
	timer  *clock.Timer
	ticker *clock.Ticker
	stopCh chan struct{}
	once   sync.Once
}

// New 创建使用真实时钟的调度器
func New() *Scheduler {
	return NewWithClock(clock.New())
}

// NewWithClock 创建使用指定时钟的调度器
func NewWithClock(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clk:   clk,
		tasks: make(map[*Task]struct{}),
	}
}

// Clock 返回底层时钟
func (s *Scheduler) Clock() clock.Clock {
	return s.clk
}

// Now 返回调度器时钟的当前时间
func (s *Scheduler) Now() time.Time {
	return s.clk.Now()
}

// Every 以固定间隔重复执行 fn，首次触发在 interval 之后
// 调度器已停止时返回 nil。
func (s *Scheduler) Every(interval time.Duration, name string, fn func()) *Task {
	if s.stopped.Load() {
		return nil
	}

	task := &Task{
		name:   name,
		sched:  s,
		ticker: s.clk.Ticker(interval),
		stopCh: make(chan struct{}),
	}
	s.track(task)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-task.stopCh:
				return
			case <-task.ticker.C:
				s.run(name, fn)
			}
		}
	}()

	return task
}

// After 延迟 d 后执行一次 fn
// 调度器已停止时返回 nil。
func (s *Scheduler) After(d time.Duration, name string, fn func()) *Task {
	if s.stopped.Load() {
		return nil
	}

	task := &Task{
		name:  name,
		sched: s,
	}
	task.timer = s.clk.AfterFunc(d, func() {
		s.run(name, fn)
		s.untrack(task)
	})
	s.track(task)

	return task
}

// Stop 同步停止所有任务，返回后不再有任务体在执行
func (s *Scheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}

	// 等待周期任务的 goroutine 退出
	s.wg.Wait()

	// 等待在途的一次性任务体执行完毕
	s.gate.Lock()
	s.gate.Unlock() //nolint:staticcheck // 空临界区仅用于排空在途任务
}

// run 执行任务体，panic 被隔离并记录，不影响其他任务
func (s *Scheduler) run(name string, fn func()) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.stopped.Load() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Sched] task %s panicked: %v\n%s", name, r, debug.Stack())
		}
	}()
	fn()
}

func (s *Scheduler) track(task *Task) {
	s.mu.Lock()
	s.tasks[task] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) untrack(task *Task) {
	s.mu.Lock()
	delete(s.tasks, task)
	s.mu.Unlock()
}

// Stop 取消任务，可重复调用
// 对已经在执行中的任务体不生效，由调用方在任务体内复查状态。
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.ticker != nil {
			t.ticker.Stop()
			close(t.stopCh)
		}
		if t.timer != nil {
			t.timer.Stop()
		}
		t.sched.untrack(t)
	})
}
