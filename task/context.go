package task

import (
	"errors"
	"sync"
	"time"

	"github.com/tsinghua-fib-lab/scenario-player/clock"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/event"
	"github.com/tsinghua-fib-lab/scenario-player/entity/road"
	"github.com/tsinghua-fib-lab/scenario-player/entity/vehicle"
	"github.com/tsinghua-fib-lab/scenario-player/lod"
	"github.com/tsinghua-fib-lab/scenario-player/parser"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
)

const (
	SelfName = "scenario-player" // 本程序在模拟任务集群中的名字
)

// ErrNoScenario 没有可以回放的场景数据
var ErrNoScenario = errors.New("task: no scenario data")

// Frame 一帧的输出
// 功能：帧循环每次执行后交给渲染层与订阅者的不可变快照
type Frame struct {
	Index           int64                    `json:"index"`
	Time            float64                  `json:"time"`
	Transforms      []vehicle.Transform      `json:"transforms"`
	Vehicles        []vehicle.VehicleElement `json:"vehicles"`
	TriggeredEvents []*entity.ScenarioEvent  `json:"triggeredEvents"`
	LOD             lod.Decision             `json:"lod"`
}

// Context 回放任务上下文
// 功能：包含一次回放会话的所有变量和状态，替代全局变量
// 说明：
// 1. 时间轴状态（clock）只在帧回调与控制方法中修改，两者通过mu串行化
// 2. 同一时刻最多只有一个挂起的帧回调
// 3. 订阅者在释放锁之后调用，可以在回调中调用控制方法
type Context struct {
	mu sync.Mutex

	cfg config.Config

	// 时钟
	clock *clock.Clock
	// 墙钟与帧调度器
	wall   clock.WallClock
	frames clock.FrameScheduler

	// Road管理器
	roadManager *road.RoadManager
	// Vehicle管理器
	vehicleManager *vehicle.Manager
	// 事件处理器
	events *event.Processor
	// LOD调节器
	governor *lod.Governor

	// 当前场景的元数据、解析告警与校验结论
	scenario parser.ScenarioInfo
	warnings []string
	issues   []parser.ValidationIssue

	cameraDistance float64
	lastWall       time.Time // 上一帧的墙钟时刻，零值表示下一帧不推进时间
	deltas         []float64 // 最近若干帧的墙钟间隔（秒），用于计算帧率
	dirty          bool      // 是否有未通知的时间轴状态变化
	cancelFrame    func()    // 挂起帧回调的取消函数，nil表示没有挂起的回调
	frameSeq       uint64    // 最近一次帧请求的序号
	disposed       bool
	frame          Frame // 最近一帧

	subID     int
	stateSubs map[int]func(clock.Snapshot)
	frameSubs map[int]func(Frame)
}

// NewContext 创建回放任务上下文
// 功能：初始化时钟、各管理器与LOD调节器，并载入场景
// 参数：
//   - cfg: 配置对象（零值字段会补全默认值）
//   - data: 解析结果
//   - wall: 墙钟
//   - frames: 帧调度器
//
// 返回：上下文，LOD配置非法或没有场景数据时返回错误
// 说明：配置了autoplay时创建后立即开始播放
func NewContext(cfg config.Config, data *parser.Result, wall clock.WallClock, frames clock.FrameScheduler) (*Context, error) {
	if data == nil {
		return nil, ErrNoScenario
	}
	cfg.FillDefaults()
	governor, err := lod.NewGovernor(cfg.LOD)
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		cfg:            cfg,
		wall:           wall,
		frames:         frames,
		governor:       governor,
		cameraDistance: cfg.Control.Playback.CameraDistance,
		stateSubs:      make(map[int]func(clock.Snapshot)),
		frameSubs:      make(map[int]func(Frame)),
	}
	ctx.clock = clock.New(0, cfg.Control.Playback.Speed)
	ctx.clock.Loop = cfg.Control.Playback.Loop
	governor.OnTierChange(func(from, to lod.Level) {
		log.Infof("lod tier %v -> %v at %s", from, to, ctx.clock)
	})

	ctx.mu.Lock()
	ctx.load(data)
	ctx.mu.Unlock()

	if cfg.Control.Playback.Autoplay {
		ctx.Play()
	}
	return ctx, nil
}

// Load 替换当前场景
// 功能：场景重新加载后时间轴回到idle、时间0，LOD调节器恢复初始状态；倍速与循环设置保留
func (ctx *Context) Load(data *parser.Result) error {
	if data == nil {
		return ErrNoScenario
	}
	ctx.mu.Lock()
	if ctx.disposed {
		ctx.mu.Unlock()
		return nil
	}
	ctx.load(data)
	ctx.requestFrameLocked()
	ctx.mu.Unlock()
	return nil
}

// load 载入场景，调用方需持有锁
// 算法说明：
// 1. 时钟：以场景时长重建时间轴，停在时间0
// 2. 道路：道路管理器提供平均车道宽度
// 3. 车辆与事件：车辆管理器与事件处理器都以初始状态开始
// 4. 输出：生成时间0的帧，标记状态变化
func (ctx *Context) load(data *parser.Result) {
	ctx.clock.Duration = max(data.Scenario.Duration, 0)
	ctx.clock.Init()
	ctx.clock.FrameRate = 0
	ctx.lastWall = time.Time{}
	ctx.deltas = ctx.deltas[:0]

	ctx.scenario = data.Scenario
	ctx.warnings = data.Warnings
	ctx.issues = data.ValidationIssues

	ctx.roadManager = road.NewManager()
	ctx.roadManager.Init(data.Roads)
	ctx.vehicleManager = vehicle.NewManager(ctx)
	ctx.vehicleManager.InitializeVehicles(data.Vehicles)
	ctx.events = event.NewProcessor(data.Timeline)
	ctx.events.SetStartSpeed(ctx.cfg.Parser.DefaultSpeed)
	ctx.governor.Reset()

	log.Infof("Scenario: %s (%.3fs)", data.Scenario.Name, ctx.clock.Duration)
	log.Infof("Road: %v", len(data.Roads))
	log.Infof("Vehicle: %v", len(data.Vehicles))
	log.Infof("Event: %v", ctx.events.Len())

	ctx.vehicleManager.UpdateVehicleStates(0)
	ctx.frame = ctx.buildFrame(nil)
	ctx.dirty = true
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) RoadManager() entity.IRoadManager {
	return ctx.roadManager
}

func (ctx *Context) VehicleManager() entity.IVehicleManager {
	return ctx.vehicleManager
}

func (ctx *Context) RuntimeConfig() *config.Config {
	return &ctx.cfg
}
