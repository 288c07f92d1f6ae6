package task

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/clock"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/event"
	"github.com/tsinghua-fib-lab/scenario-player/entity/road"
	"github.com/tsinghua-fib-lab/scenario-player/entity/vehicle"
	"github.com/tsinghua-fib-lab/scenario-player/lod"
	"github.com/tsinghua-fib-lab/scenario-player/parser"
)

// 控制方法
// 说明：所有控制方法都只修改时间轴状态并标记dirty，实际推进与通知在下一帧完成；
// 同一帧内的多次操作合并为一次状态通知

// Play 开始播放
// 说明：已结束时从0重新开始；正在播放时无操作
func (ctx *Context) Play() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.disposed || ctx.clock.Playing() {
		return
	}
	if ctx.clock.Status == clock.StatusEnded || ctx.clock.T >= ctx.clock.Duration {
		ctx.restartLocked()
	}
	ctx.clock.Status = clock.StatusPlaying
	ctx.lastWall = ctx.wall.Now()
	ctx.dirty = true
	ctx.requestFrameLocked()
	log.Infof("play at %s (x%.2f)", ctx.clock, ctx.clock.Speed)
}

// Pause 暂停
// 说明：时间停在当前值，挂起的帧只用于发送状态通知，不再推进时间
func (ctx *Context) Pause() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.disposed || !ctx.clock.Playing() {
		return
	}
	ctx.clock.Status = clock.StatusPaused
	ctx.lastWall = time.Time{}
	ctx.dirty = true
	ctx.requestFrameLocked()
	log.Infof("pause at %s", ctx.clock)
}

// Toggle 播放/暂停切换
func (ctx *Context) Toggle() {
	ctx.mu.Lock()
	playing := ctx.clock.Playing()
	ctx.mu.Unlock()
	if playing {
		ctx.Pause()
	} else {
		ctx.Play()
	}
}

// Reset 停止并回到时间0，所有事件与车辆恢复初始状态
func (ctx *Context) Reset() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.disposed {
		return
	}
	ctx.restartLocked()
	ctx.clock.Init()
	ctx.lastWall = time.Time{}
	ctx.deltas = ctx.deltas[:0]
	ctx.dirty = true
	ctx.requestFrameLocked()
}

// restartLocked 事件与车辆回到时间0的状态，调用方需持有锁
func (ctx *Context) restartLocked() {
	ctx.clock.T = 0
	ctx.events.Reset()
	ctx.vehicleManager.Reset()
	ctx.vehicleManager.UpdateVehicleStates(0)
}

// SeekTo 跳转到时刻t
// 功能：t被限制在[0, Duration]内；向后跳转时重建车辆状态，向前跳转时在下一帧补触发跳过的事件
// 说明：跳转后State()立即反映新的时间；已结束的时间轴跳转到末尾之前时变为暂停
func (ctx *Context) SeekTo(t float64) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.disposed {
		return
	}
	t = ctx.clock.ClampTime(t)
	if t < ctx.clock.T {
		ctx.rewindLocked(t)
	}
	ctx.clock.T = t
	if ctx.clock.Status == clock.StatusEnded && t < ctx.clock.Duration {
		ctx.clock.Status = clock.StatusPaused
	}
	ctx.dirty = true
	ctx.requestFrameLocked()
}

// SetPlaybackSpeed 设置倍速，超出[0.1, 4]的值被截断
func (ctx *Context) SetPlaybackSpeed(speed float64) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.disposed {
		return
	}
	ctx.clock.SetSpeed(speed)
	ctx.dirty = true
	ctx.requestFrameLocked()
}

// SetLoop 设置是否循环播放
func (ctx *Context) SetLoop(loop bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.disposed {
		return
	}
	ctx.clock.Loop = loop
	ctx.dirty = true
	ctx.requestFrameLocked()
}

// SetCameraDistance 更新相机到场景中心的距离，下一帧重新评估LOD
// 说明：NaN与负值被忽略
func (ctx *Context) SetCameraDistance(d float64) {
	if math.IsNaN(d) || d < 0 {
		log.Warnf("ignore invalid camera distance %v", d)
		return
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.disposed {
		return
	}
	ctx.cameraDistance = d
	ctx.requestFrameLocked()
}

// OnTierChange 注册LOD档位变化监听，在帧内同步调用，不能调用控制方法
func (ctx *Context) OnTierChange(f func(from, to lod.Level)) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.governor.OnTierChange(f)
}

// Subscribe 订阅时间轴状态变化
// 返回：取消订阅函数
func (ctx *Context) Subscribe(f func(clock.Snapshot)) (unsubscribe func()) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	id := ctx.subID
	ctx.subID++
	ctx.stateSubs[id] = f
	return func() {
		ctx.mu.Lock()
		defer ctx.mu.Unlock()
		delete(ctx.stateSubs, id)
	}
}

// SubscribeFrames 订阅每一帧的输出
// 返回：取消订阅函数
func (ctx *Context) SubscribeFrames(f func(Frame)) (unsubscribe func()) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	id := ctx.subID
	ctx.subID++
	ctx.frameSubs[id] = f
	return func() {
		ctx.mu.Lock()
		defer ctx.mu.Unlock()
		delete(ctx.frameSubs, id)
	}
}

// Dispose 结束回放会话
// 功能：取消挂起的帧回调并清空订阅者，之后的控制方法与过期回调都不再生效
func (ctx *Context) Dispose() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.disposed {
		return
	}
	ctx.disposed = true
	if ctx.cancelFrame != nil {
		ctx.cancelFrame()
		ctx.cancelFrame = nil
	}
	clear(ctx.stateSubs)
	clear(ctx.frameSubs)
	log.Infof("dispose at %s after %d frames", ctx.clock, ctx.clock.Frame)
}

// 查询方法

// State 时间轴状态快照
func (ctx *Context) State() clock.Snapshot {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.clock.Snapshot()
}

// Frame 最近一帧
func (ctx *Context) Frame() Frame {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.frame
}

// Events 时间轴上的事件标记
func (ctx *Context) Events() []event.VisualizationEvent {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.events.GetEventsForVisualization(ctx.clock.Duration)
}

// Statistics 事件统计
func (ctx *Context) Statistics() event.Statistics {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.events.GetEventStatistics()
}

// RoadView 道路及其参考线折线
type RoadView struct {
	*entity.Road
	Outline []r3.Vector `json:"outline"`
}

// Roads 道路
// 参数：step-参考线采样步长（米），不大于0时取1米
func (ctx *Context) Roads(step float64) []RoadView {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return lo.Map(ctx.roadManager.Roads(), func(r *entity.Road, _ int) RoadView {
		return RoadView{Road: r, Outline: road.Sample(r, step)}
	})
}

// Profile LOD性能画像
func (ctx *Context) Profile() lod.PerformanceProfile {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.governor.Profile()
}

// ScenarioInfo 当前场景的元数据、解析告警与校验结论
type ScenarioInfo struct {
	parser.ScenarioInfo
	Warnings         []string                 `json:"warnings"`
	ValidationIssues []parser.ValidationIssue `json:"validationIssues"`
	VehicleIDs       []string                 `json:"vehicleIds"`
}

// Scenario 当前场景信息
func (ctx *Context) Scenario() ScenarioInfo {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ScenarioInfo{
		ScenarioInfo:     ctx.scenario,
		Warnings:         ctx.warnings,
		ValidationIssues: ctx.issues,
		VehicleIDs:       lo.Map(ctx.frame.Transforms, func(t vehicle.Transform, _ int) string { return t.VehicleID }),
	}
}
