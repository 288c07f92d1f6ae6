package clock

import (
	"sync"
	"time"
)

// FrameScheduler 帧回调调度器
// 功能：请求在“下一帧”执行一次回调，返回取消函数
// 说明：帧循环中唯一的挂起点就是等待下一次回调
type FrameScheduler interface {
	RequestFrame(cb func(now time.Time)) (cancel func())
}

// TimerScheduler 基于墙钟定时器的帧调度器
type TimerScheduler struct {
	wall     WallClock
	interval time.Duration
}

// NewTimerScheduler 创建帧调度器
// 参数：wall-墙钟，interval-帧间隔
func NewTimerScheduler(wall WallClock, interval time.Duration) *TimerScheduler {
	return &TimerScheduler{wall: wall, interval: interval}
}

func (s *TimerScheduler) RequestFrame(cb func(now time.Time)) (cancel func()) {
	timer := s.wall.NewTimer(s.interval)
	done := make(chan struct{})
	go func() {
		select {
		case now := <-timer.C():
			cb(now)
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			timer.Stop()
			close(done)
		})
	}
}

// ManualScheduler 手动触发的帧调度器，用于测试
type ManualScheduler struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]func(now time.Time)
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{pending: make(map[int]func(now time.Time))}
}

func (s *ManualScheduler) RequestFrame(cb func(now time.Time)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.pending[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.pending, id)
	}
}

// Pending 待执行的回调数
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Fire 执行当前所有待执行的回调（回调中新请求的帧留到下一次Fire）
func (s *ManualScheduler) Fire(now time.Time) {
	s.mu.Lock()
	cbs := s.pending
	s.pending = make(map[int]func(now time.Time))
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(now)
	}
}
