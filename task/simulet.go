package task

import (
	"runtime/debug"
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/clock"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/lod"
	"gonum.org/v1/gonum/stat"
)

// requestFrameLocked 请求下一帧，调用方需持有锁
// 说明：已有挂起的回调时不重复请求，多次控制操作合并到同一帧
func (ctx *Context) requestFrameLocked() {
	if ctx.disposed || ctx.cancelFrame != nil {
		return
	}
	ctx.frameSeq++
	seq := ctx.frameSeq
	ctx.cancelFrame = ctx.frames.RequestFrame(func(now time.Time) {
		ctx.tick(seq, now)
	})
}

// tick 帧回调
// 功能：执行一帧并在释放锁后通知订阅者
// 参数：seq-请求该帧时的序号，now-回调时的墙钟时刻
// 算法说明：
// 1. 过期回调（已释放或已被新的请求取代）直接返回
// 2. 执行一帧，帧内的panic被记录后丢弃，时间轴保持在panic前的状态
// 3. 仍在播放时请求下一帧
// 4. 帧订阅者每帧通知一次；时间轴状态有变化时状态订阅者通知一次
func (ctx *Context) tick(seq uint64, now time.Time) {
	ctx.mu.Lock()
	if ctx.disposed || seq != ctx.frameSeq || ctx.cancelFrame == nil {
		ctx.mu.Unlock()
		return
	}
	ctx.cancelFrame = nil
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("frame %d panic: %v\n%s", ctx.clock.Frame, r, debug.Stack())
			}
		}()
		ctx.step(now)
	}()
	if ctx.clock.Playing() {
		ctx.requestFrameLocked()
	}
	frame := ctx.frame
	frameSubs := lo.Values(ctx.frameSubs)
	var (
		snapshot  clock.Snapshot
		stateSubs []func(clock.Snapshot)
	)
	if ctx.dirty {
		ctx.dirty = false
		snapshot = ctx.clock.Snapshot()
		stateSubs = lo.Values(ctx.stateSubs)
	}
	ctx.mu.Unlock()

	for _, f := range frameSubs {
		notify(func() { f(frame) })
	}
	for _, f := range stateSubs {
		notify(func() { f(snapshot) })
	}
}

// notify 调用订阅者，订阅者的panic不影响帧循环
func notify(f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("subscriber panic: %v\n%s", r, debug.Stack())
		}
	}()
	f()
}

// step 执行一帧，调用方需持有锁
// 算法说明：
// 1. 计时：播放中以与上一帧的墙钟间隔推进时间，间隔记入帧率窗口，推进前截断到MaxFrameDelta
// 2. 边界：循环回绕时事件与车辆回到初始状态；到达末尾时停在Duration
// 3. 事件：触发到期事件，将增量交给车辆管理器
// 4. 车辆：推进过渡并刷新位姿
// 5. 输出：LOD评估并生成帧，时间或状态有变化时标记dirty
func (ctx *Context) step(now time.Time) {
	c := ctx.clock
	prevT, prevStatus := c.T, c.Status

	if c.Playing() {
		delta := 0.0
		if !ctx.lastWall.IsZero() {
			delta = max(now.Sub(ctx.lastWall).Seconds(), 0)
			ctx.recordDelta(delta)
		}
		ctx.lastWall = now
		wrapped, ended := c.Advance(min(delta, ctx.cfg.Control.Playback.MaxFrameDelta))
		if wrapped {
			log.Infof("loop back to 0 after %s", formatDuration(c.Duration))
			ctx.events.Reset()
			ctx.vehicleManager.Reset()
		}
		if ended {
			log.Infof("playback ended at %s", c)
			ctx.lastWall = time.Time{}
		}
	}

	res := ctx.events.ProcessEventsAtTime(c.T, ctx.vehicleManager.VehicleData())
	ctx.vehicleManager.ApplyStateUpdates(res.VehicleStateUpdates, c.T)
	ctx.vehicleManager.UpdateVehicleStates(c.T)

	c.Frame++
	ctx.frame = ctx.buildFrame(res.TriggeredEvents)
	if c.T != prevT || c.Status != prevStatus {
		ctx.dirty = true
	}

	if c.Frame%int64(ctx.cfg.Control.Playback.HeartbeatInterval) == 0 {
		log.Infof(
			"FRAME: %d(%s) fps=%.1f lod=%v visible=%d",
			c.Frame, c, c.FrameRate, ctx.frame.LOD.Level, ctx.vehicleManager.VisibleCount(),
		)
	}
}

// buildFrame 根据当前状态生成帧，调用方需持有锁
func (ctx *Context) buildFrame(triggered []*entity.ScenarioEvent) Frame {
	decision := ctx.governor.Evaluate(lod.Input{
		CameraDistance: ctx.cameraDistance,
		FPS:            ctx.clock.FrameRate,
		VehicleCount:   ctx.vehicleManager.VisibleCount(),
	})
	return Frame{
		Index:           ctx.clock.Frame,
		Time:            ctx.clock.T,
		Transforms:      ctx.vehicleManager.Transforms(),
		Vehicles:        ctx.vehicleManager.ConvertAllToVehicleElements(),
		TriggeredEvents: triggered,
		LOD:             decision,
	}
}

// recordDelta 记录一帧的墙钟间隔并更新滑动平均帧率
func (ctx *Context) recordDelta(delta float64) {
	ctx.deltas = append(ctx.deltas, delta)
	if n := len(ctx.deltas) - ctx.cfg.Control.Playback.FrameRateWindow; n > 0 {
		ctx.deltas = ctx.deltas[n:]
	}
	if mean := stat.Mean(ctx.deltas, nil); mean > 0 {
		ctx.clock.FrameRate = 1 / mean
	}
}

// rewindLocked 时间回退到t，调用方需持有锁
// 功能：车辆从初始状态出发，按时间顺序重放t之前已触发的事件，使状态与顺序播放到t一致
func (ctx *Context) rewindLocked(t float64) {
	ctx.events.Rewind(t)
	ctx.vehicleManager.Reset()
	updates := ctx.events.Replay(t, ctx.vehicleManager.VehicleData())
	// 按触发时刻分组应用
	for _, group := range lo.PartitionBy(updates, func(u entity.VehicleStateUpdate) float64 { return u.StartTime }) {
		ctx.vehicleManager.ApplyStateUpdates(group, group[0].StartTime)
	}
	ctx.vehicleManager.UpdateVehicleStates(t)
	log.Debugf("rewind to %.3f, replay %d updates", t, len(updates))
}

func formatDuration(sec float64) string {
	return time.Duration(sec * float64(time.Second)).String()
}
