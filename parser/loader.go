package parser

import (
	"context"
	"sync"
)

// Loader 调用方一侧的解析状态
// 功能：异步提交解析，对外暴露loading/err/data三个状态
// 说明：
// 1. 新的Load会使尚未返回的旧请求作废，旧请求的结果被丢弃
// 2. 出错时loading一定被清除，data保留上一次成功的结果
// 3. Close之后不会再触发任何回调
type Loader struct {
	worker *Worker

	mu      sync.Mutex
	loading bool
	err     error
	data    *Result
	seq     uint64
	closed  bool
	onLoad  func(*Result, error)

	cbMu sync.Mutex // 回调执行期间持有，Close据此等待正在执行的回调
	wg   sync.WaitGroup
}

// NewLoader 创建Loader，Loader负责在Close时终止worker
func NewLoader(w *Worker) *Loader {
	return &Loader{worker: w}
}

// OnLoad 设置解析完成回调，在后台goroutine中调用，回调中不能调用Close
func (l *Loader) OnLoad(f func(*Result, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLoad = f
}

// Load 异步解析，立即返回
func (l *Loader) Load(ctx context.Context, files []File, validation map[string]ValidationResult) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.seq++
	seq := l.seq
	l.loading = true
	l.err = nil
	l.wg.Add(1)
	l.mu.Unlock()

	reply := l.worker.Submit(ctx, files, validation)
	go func() {
		defer l.wg.Done()
		resp := <-reply

		l.cbMu.Lock()
		defer l.cbMu.Unlock()
		l.mu.Lock()
		if l.closed || seq != l.seq {
			l.mu.Unlock()
			log.Debugf("drop stale parse response %s", resp.RequestID)
			return
		}
		l.loading = false
		if resp.Err != nil {
			l.err = resp.Err
			log.Errorf("load scenario: %v", resp.Err)
		} else {
			l.data = resp.Result
		}
		cb := l.onLoad
		l.mu.Unlock()
		if cb != nil {
			cb(resp.Result, resp.Err)
		}
	}()
}

// Loading 是否有解析正在进行
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Err 最近一次解析的错误
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Data 最近一次成功解析的结果
func (l *Loader) Data() *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data
}

// Wait 等待所有已提交的解析返回（包括被作废的）
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Close 终止worker，等待正在执行的回调结束，可重复调用
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	l.loading = false
	l.mu.Unlock()
	l.worker.Terminate()
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
}
