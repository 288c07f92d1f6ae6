package event

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

const (
	DefaultStartSpeed    = 10.0 // vehicle_start缺省目标速度（米/秒）
	DefaultBrakeDuration = 1.0  // brake_action缺省过渡时长（秒）
	DefaultLaneOffset    = 1    // lane_change缺省相对车道数
)

// ProcessResult 单次推进的结果
type ProcessResult struct {
	TriggeredEvents     []*entity.ScenarioEvent     // 本次调用中由pending变为active的事件（快照）
	VehicleStateUpdates []entity.VehicleStateUpdate // 需要车辆状态管理器应用的增量
}

// Processor 事件处理器
// 功能：持有场景事件列表，随仿真时间推进每个事件的状态机
// 说明：
// 1. 状态机为pending→active→completed，同一次武装内只触发一次
// 2. 时间回退（Rewind或以更小的时间调用ProcessEventsAtTime）时，触发时刻晚于新时间、
// 且执行次数未达MaximumExecutionCount的事件被重新武装为pending
// 3. ExecutionCount只在Reset时清零
type Processor struct {
	events []*entity.ScenarioEvent

	lastTime float64
	started  bool // 是否已处理过任意时间

	startSpeed float64
	warned     map[string]struct{} // 已告警过未知车辆的事件ID
}

// NewProcessor 创建事件处理器
// 参数：events-场景事件（深拷贝后按时间、ID排序，调用方的切片不会被修改）
func NewProcessor(events []*entity.ScenarioEvent) *Processor {
	p := &Processor{
		events: lo.Map(events, func(e *entity.ScenarioEvent, _ int) *entity.ScenarioEvent {
			c := e.Clone()
			if c.Status == "" {
				c.Status = entity.StatusPending
			}
			if c.Priority == "" {
				c.Priority = entity.PriorityOverwrite
			}
			return c
		}),
		startSpeed: DefaultStartSpeed,
		warned:     make(map[string]struct{}),
	}
	sort.SliceStable(p.events, func(i, j int) bool {
		if p.events[i].Time != p.events[j].Time {
			return p.events[i].Time < p.events[j].Time
		}
		return p.events[i].ID < p.events[j].ID
	})
	return p
}

// SetStartSpeed 设置vehicle_start缺省目标速度
func (p *Processor) SetStartSpeed(v float64) {
	if v > 0 {
		p.startSpeed = v
	}
}

// Len 事件数
func (p *Processor) Len() int {
	return len(p.events)
}

// Events 所有事件的快照
func (p *Processor) Events() []*entity.ScenarioEvent {
	return lo.Map(p.events, func(e *entity.ScenarioEvent, _ int) *entity.ScenarioEvent { return e.Clone() })
}

// ProcessEventsAtTime 将事件推进到时刻t
// 功能：触发到期事件并生成车辆状态增量，完成到期的活动事件
// 参数：t-仿真时间，vehicles-车辆数据（用于检查事件引用的车辆是否存在）
// 返回：本次触发的事件与车辆状态增量
// 算法说明：
// 1. t小于上次处理的时间时先按Rewind重新武装
// 2. 按时间顺序遍历：pending且t≥Time的事件变为active，执行次数加一并生成增量
// 3. active且t≥Time+Duration的事件变为completed（Duration为0时在同一次调用中完成）
// 4. 引用未知车辆的事件照常推进并报告，但不生成增量，每个事件只告警一次
func (p *Processor) ProcessEventsAtTime(t float64, vehicles map[string]*entity.VehicleTrajectoryData) ProcessResult {
	var res ProcessResult
	if math.IsNaN(t) {
		return res
	}
	if p.started && t < p.lastTime {
		p.Rewind(t)
	}
	p.started = true
	p.lastTime = t

	for _, e := range p.events {
		if e.Time > t {
			// 事件已排序，之后的事件都未到期
			break
		}
		if e.Status == entity.StatusPending {
			if e.MaximumExecutionCount > 0 && e.ExecutionCount >= e.MaximumExecutionCount {
				e.Status = entity.StatusCompleted
				continue
			}
			e.Status = entity.StatusActive
			e.ExecutionCount++
			res.TriggeredEvents = append(res.TriggeredEvents, e.Clone())
			if _, ok := vehicles[e.VehicleID]; !ok {
				if _, ok := p.warned[e.ID]; !ok {
					p.warned[e.ID] = struct{}{}
					log.Warnf("event %s references unknown vehicle %q", e.ID, e.VehicleID)
				}
			} else if u, ok := p.buildUpdate(e); ok {
				res.VehicleStateUpdates = append(res.VehicleStateUpdates, u)
			}
			log.Debugf("trigger %v at %.3f", e, t)
		}
		if e.Status == entity.StatusActive && t >= e.End() {
			e.Status = entity.StatusCompleted
		}
	}
	return res
}

// Rewind 时间回退到t
// 功能：重新武装触发时刻晚于t且仍有剩余执行次数的事件，其余事件保持原状态
func (p *Processor) Rewind(t float64) {
	if math.IsNaN(t) {
		return
	}
	for _, e := range p.events {
		if e.Time <= t || e.Status == entity.StatusPending {
			continue
		}
		if e.MaximumExecutionCount == 0 || e.ExecutionCount < e.MaximumExecutionCount {
			e.Status = entity.StatusPending
		}
	}
	p.lastTime = t
}

// Replay 重建时刻t之前已触发事件的车辆状态增量
// 功能：时间回退后车辆状态需要从初始状态重建，按时间顺序返回已触发（非pending）且触发时刻不晚于t的事件增量
// 说明：只读，不改变事件状态与执行次数，也不报告触发
func (p *Processor) Replay(t float64, vehicles map[string]*entity.VehicleTrajectoryData) []entity.VehicleStateUpdate {
	var res []entity.VehicleStateUpdate
	for _, e := range p.events {
		if e.Time > t {
			break
		}
		if e.Status == entity.StatusPending || e.ExecutionCount == 0 {
			continue
		}
		if _, ok := vehicles[e.VehicleID]; !ok {
			continue
		}
		if u, ok := p.buildUpdate(e); ok {
			res = append(res, u)
		}
	}
	return res
}

// Reset 开始新的回放会话：所有事件回到pending，执行次数清零
func (p *Processor) Reset() {
	for _, e := range p.events {
		e.Status = entity.StatusPending
		e.ExecutionCount = 0
	}
	p.started = false
	p.lastTime = 0
	p.warned = make(map[string]struct{})
}

// buildUpdate 根据事件类型生成车辆状态增量
// 返回：增量，是否需要应用
func (p *Processor) buildUpdate(e *entity.ScenarioEvent) (entity.VehicleStateUpdate, bool) {
	u := entity.VehicleStateUpdate{
		VehicleID:          e.VehicleID,
		EventID:            e.ID,
		Type:               e.Type,
		Priority:           e.Priority,
		StartTime:          e.Time,
		TransitionDuration: math.Max(e.Duration, 0),
	}
	u.DynamicsShape, _ = e.StringParam("dynamicsShape")

	switch e.Type {
	case entity.EventVehicleStart:
		speed, ok := e.NumberParam("speed")
		if !ok {
			speed = p.startSpeed
		}
		u.TargetSpeed = lo.ToPtr(math.Max(speed, 0))
	case entity.EventVehicleStop:
		u.TargetSpeed = lo.ToPtr(0.0)
	case entity.EventBrakeAction:
		u.TargetSpeed = lo.ToPtr(0.0)
		if e.Duration <= 0 {
			u.TransitionDuration = DefaultBrakeDuration
		}
	case entity.EventSpeedChange:
		speed, ok := e.NumberParam("speed")
		if !ok {
			log.Warnf("speed_change event %s has no speed parameter", e.ID)
			return u, false
		}
		u.TargetSpeed = lo.ToPtr(math.Max(speed, 0))
	case entity.EventLaneChange:
		lane := DefaultLaneOffset
		if v, ok := e.NumberParam("targetLane"); ok {
			lane = int(math.Round(v))
		}
		u.TargetLane = &lane
	case entity.EventTeleport:
		x, okX := e.NumberParam("x")
		y, okY := e.NumberParam("y")
		if !okX || !okY {
			log.Warnf("teleport event %s has no x/y parameter", e.ID)
			return u, false
		}
		z, _ := e.NumberParam("z")
		u.Position = &r3.Vector{X: x, Y: y, Z: z}
	default:
		return u, false
	}
	return u, true
}
