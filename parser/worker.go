package parser

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
)

// Response 一次解析请求的应答
type Response struct {
	RequestID string
	Result    *Result // 成功时非nil，视为不可变快照
	Err       error
}

type request struct {
	id         string
	ctx        context.Context
	files      []File
	validation map[string]ValidationResult
	reply      chan Response
}

// Worker 后台解析worker
// 功能：在独立goroutine中串行执行解析，调用方通过channel提交请求并接收应答
// 说明：
// 1. 每个请求恰好得到一个应答，应答channel随后关闭
// 2. 输入总字节数超过MaxInputBytes时直接拒绝（ErrInputTooLarge）
// 3. 单次解析超过Timeout返回ErrParseTimeout，超时的解析在后台自行结束，其结果被丢弃
// 4. 解析过程中panic返回ErrWorkerCrashed，worker继续服务后续请求
// 5. Terminate后所有未完成与新提交的请求返回ErrWorkerTerminated
type Worker struct {
	cfg   config.Parser
	parse func(files []File, validation map[string]ValidationResult) *Result

	reqs chan request
	done chan struct{}
	once sync.Once
}

// NewWorker 创建并启动worker
// 参数：cfg-解析配置（零值字段会补全默认值）
func NewWorker(cfg config.Parser) *Worker {
	p := New(cfg)
	return newWorker(p.cfg, p.Parse)
}

func newWorker(cfg config.Parser, parse func([]File, map[string]ValidationResult) *Result) *Worker {
	w := &Worker{
		cfg:   cfg,
		parse: parse,
		reqs:  make(chan request),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Submit 提交解析请求，不阻塞
// 参数：ctx-请求上下文，取消后请求以ctx.Err()结束；files-原始文档；validation-外部校验结论
// 返回：只会收到一个应答的channel
func (w *Worker) Submit(ctx context.Context, files []File, validation map[string]ValidationResult) <-chan Response {
	req := request{
		id:         uuid.NewString(),
		ctx:        ctx,
		files:      files,
		validation: validation,
		reply:      make(chan Response, 1),
	}
	fail := func(err error) {
		req.reply <- Response{RequestID: req.id, Err: err}
		close(req.reply)
	}

	total := lo.SumBy(files, func(f File) int64 { return int64(len(f.Data)) })
	if total > w.cfg.MaxInputBytes {
		fail(fmt.Errorf("%w: %d > %d bytes", ErrInputTooLarge, total, w.cfg.MaxInputBytes))
		return req.reply
	}
	select {
	case <-w.done:
		fail(ErrWorkerTerminated)
		return req.reply
	default:
	}
	log.Debugf("submit parse request %s (%d files, %d bytes)", req.id, len(files), total)
	go func() {
		select {
		case w.reqs <- req:
		case <-w.done:
			fail(ErrWorkerTerminated)
		case <-ctx.Done():
			fail(ctx.Err())
		}
	}()
	return req.reply
}

// Terminate 终止worker，可重复调用
func (w *Worker) Terminate() {
	w.once.Do(func() {
		close(w.done)
		log.Info("parser worker terminated")
	})
}

func (w *Worker) loop() {
	for {
		select {
		case <-w.done:
			return
		case req := <-w.reqs:
			w.handle(req)
		}
	}
}

func (w *Worker) handle(req request) {
	defer close(req.reply)
	ctx, cancel := context.WithTimeout(req.ctx, time.Duration(w.cfg.Timeout*float64(time.Second)))
	defer cancel()

	start := time.Now()
	out := make(chan Response, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("parse request %s panic: %v\n%s", req.id, r, debug.Stack())
				out <- Response{RequestID: req.id, Err: fmt.Errorf("%w: %v", ErrWorkerCrashed, r)}
			}
		}()
		out <- Response{RequestID: req.id, Result: w.parse(req.files, req.validation)}
	}()

	var resp Response
	select {
	case resp = <-out:
		log.Debugf("parse request %s done in %v", req.id, time.Since(start))
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v", ErrParseTimeout, time.Since(start))
		}
		log.Warnf("parse request %s: %v", req.id, err)
		resp = Response{RequestID: req.id, Err: err}
	case <-w.done:
		resp = Response{RequestID: req.id, Err: ErrWorkerTerminated}
	}
	req.reply <- resp
}
