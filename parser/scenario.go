package parser

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/road"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
	"google.golang.org/protobuf/types/known/structpb"
)

const epsilon = 1e-6

// actor 场景对象在解析过程中的状态
type actor struct {
	id   string
	typ  string
	name string

	origin    r3.Vector // 初始位置
	heading   float64   // 初始航向（弧度）
	hasOrigin bool
	speed     float64 // 初始速度

	// 按时间顺序处理故事板动作时跟踪的状态
	current float64 // 当前速度
	lane    int     // 当前车道ID（OpenDRIVE约定，0表示未知）

	vertices []entity.TrajectoryPoint // 编排轨迹
}

// storyAction 故事板中一个作用于单个对象的动作
type storyAction struct {
	time       float64
	eventName  string
	actionName string
	priority   entity.EventPriority
	maxCount   int32
	actor      *actor
	action     *xoscPrivateAction
}

// converter OpenSCENARIO到车辆与事件的转换器
// 说明：一次性使用，不可并发
type converter struct {
	cfg  config.Parser
	file string
	p    params

	actors   map[string]*actor
	order    []*actor // 按Entities中的声明顺序
	events   map[string][]*entity.ScenarioEvent
	ids      map[string]int
	warnings []string
}

func newConverter(file string, doc *xoscDocument, cfg config.Parser) *converter {
	return &converter{
		cfg:    cfg,
		file:   file,
		p:      newParams(doc.ParameterDeclarations),
		actors: make(map[string]*actor),
		events: make(map[string][]*entity.ScenarioEvent),
		ids:    make(map[string]int),
	}
}

func (c *converter) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, c.file+": "+fmt.Sprintf(format, args...))
}

// convert 执行转换
// 参数：doc-已解码的文档
// 返回：车辆（按声明顺序），场景时长；没有任何场景对象时返回错误
func (c *converter) convert(doc *xoscDocument) ([]*entity.VehicleTrajectoryData, float64, error) {
	c.loadEntities(doc.Entities)
	if len(c.order) == 0 {
		return nil, 0, fmt.Errorf("%s: no ScenarioObject in Entities", c.file)
	}
	c.loadInit(doc.Init)
	for _, sa := range c.collect(doc.Stories) {
		c.apply(sa)
	}
	duration := c.duration(doc.StopTrigger)
	dt := c.sampleInterval(duration)
	vehicles := parallel.GoMap(c.order, func(a *actor) *entity.VehicleTrajectoryData {
		return c.vehicle(a, duration, dt)
	})
	return vehicles, duration, nil
}

// loadEntities 登记场景对象
// 说明：Vehicle取vehicleCategory作为类型，Pedestrian为pedestrian，CatalogReference无法展开，按car处理
func (c *converter) loadEntities(objects []xoscScenarioObject) {
	for _, o := range objects {
		id := c.p.resolve(o.Name)
		if id == "" {
			c.warnf("ScenarioObject without name ignored")
			continue
		}
		if _, ok := c.actors[id]; ok {
			c.warnf("duplicate ScenarioObject %s ignored", id)
			continue
		}
		a := &actor{id: id, name: id, typ: "car"}
		switch {
		case o.Vehicle != nil:
			if cat := c.p.resolve(o.Vehicle.Category); cat != "" {
				a.typ = cat
			}
			if n := c.p.resolve(o.Vehicle.Name); n != "" {
				a.name = n
			}
		case o.Pedestrian != nil:
			a.typ = "pedestrian"
		case o.CatalogReference != nil:
			c.warnf("ScenarioObject %s uses CatalogReference %s, treated as car", id, o.CatalogReference.EntryName)
		}
		c.actors[id] = a
		c.order = append(c.order, a)
	}
}

// loadInit 读取Init中的初始位置、初始速度与编排轨迹
func (c *converter) loadInit(privates []xoscPrivate) {
	for _, pv := range privates {
		a, ok := c.actors[c.p.resolve(pv.EntityRef)]
		if !ok {
			c.warnf("Init references unknown entity %s", pv.EntityRef)
			continue
		}
		for _, pa := range pv.Actions {
			switch {
			case pa.Teleport != nil:
				if pos, h, ok := c.world(pa.Teleport.Position); ok {
					a.origin, a.heading, a.hasOrigin = pos, h, true
				}
				if lp := pa.Teleport.Position.Lane; lp != nil {
					if id, ok := c.p.num(lp.LaneID); ok {
						a.lane = int(math.Round(id))
					}
					if pa.Teleport.Position.World == nil {
						c.warnf("%s: LanePosition cannot be resolved without road geometry, only the lane id is used", a.id)
					}
				}
			case pa.Longitudinal != nil && pa.Longitudinal.Speed != nil:
				sa := pa.Longitudinal.Speed
				if sa.Absolute == nil {
					c.warnf("%s: initial SpeedAction without AbsoluteTargetSpeed ignored", a.id)
					continue
				}
				if v, ok := c.p.num(sa.Absolute.Value); ok {
					a.speed = math.Max(v, 0)
				}
			case pa.Routing != nil && pa.Routing.FollowTrajectory != nil:
				a.vertices = append(a.vertices, c.vertices(pa.Routing.FollowTrajectory, 0)...)
			}
		}
		a.current = a.speed
	}
}

// collect 展开Story/Act/ManeuverGroup/Maneuver/Event，按触发时刻稳定排序
// 说明：没有SimulationTimeCondition的事件安排在0时刻
func (c *converter) collect(stories []xoscStory) []storyAction {
	var res []storyAction
	for _, story := range stories {
		for _, act := range story.Acts {
			for _, mg := range act.ManeuverGroups {
				actors := make([]*actor, 0, len(mg.Actors))
				for _, ref := range lo.Uniq(lo.Map(mg.Actors, func(e xoscEntity, _ int) string { return c.p.resolve(e.EntityRef) })) {
					a, ok := c.actors[ref]
					if !ok {
						c.warnf("ManeuverGroup %s references unknown entity %s", mg.Name, ref)
						continue
					}
					actors = append(actors, a)
				}
				for _, m := range mg.Maneuvers {
					for _, ev := range m.Events {
						t, ok := c.p.firstSimulationTime(ev.StartTrigger)
						if !ok {
							c.warnf("event %s has no SimulationTimeCondition, scheduled at 0", ev.Name)
						}
						maxCount := lo.Ternary(ev.MaximumExecutionCount != "", ev.MaximumExecutionCount, mg.MaximumExecutionCount)
						for _, action := range ev.Actions {
							for _, a := range actors {
								res = append(res, storyAction{
									time:       t,
									eventName:  c.p.resolve(ev.Name),
									actionName: c.p.resolve(action.Name),
									priority:   entity.ParsePriority(c.p.resolve(ev.Priority)),
									maxCount:   c.p.count(maxCount),
									actor:      a,
									action:     action.Private,
								})
							}
						}
					}
				}
			}
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].time < res[j].time })
	return res
}

// apply 将一个故事板动作转换为事件
func (c *converter) apply(sa storyAction) {
	pa := sa.action
	switch {
	case pa == nil:
		c.custom(sa, "global")
	case pa.Longitudinal != nil && pa.Longitudinal.Speed != nil:
		c.speedChange(sa, pa.Longitudinal.Speed)
	case pa.Lateral != nil && pa.Lateral.LaneChange != nil:
		c.laneChange(sa, pa.Lateral.LaneChange)
	case pa.Teleport != nil:
		c.teleport(sa, pa.Teleport)
	case pa.Routing != nil && pa.Routing.FollowTrajectory != nil:
		vs := c.vertices(pa.Routing.FollowTrajectory, sa.time)
		sa.actor.vertices = append(sa.actor.vertices, vs...)
		c.addEvent(sa, entity.EventCustom, 0, map[string]any{
			"action":   "follow_trajectory",
			"vertices": float64(len(vs)),
		})
	default:
		c.custom(sa, "private")
	}
}

// speedChange SpeedAction
// 算法说明：
// 1. 目标速度：绝对值直接使用；相对值以参考对象（缺省为自身）当前速度为基准，delta相加，factor相乘
// 2. 类型：目标为0时有过渡为brake_action，否则为vehicle_stop；从静止起步为vehicle_start；其他为speed_change
func (c *converter) speedChange(sa storyAction, action *xoscSpeedAction) {
	a := sa.actor
	from := a.current
	var target float64
	switch {
	case action.Absolute != nil:
		v, ok := c.p.num(action.Absolute.Value)
		if !ok {
			c.warnf("event %s: invalid AbsoluteTargetSpeed %q", sa.eventName, action.Absolute.Value)
			return
		}
		target = v
	case action.Relative != nil:
		v, ok := c.p.num(action.Relative.Value)
		if !ok {
			c.warnf("event %s: invalid RelativeTargetSpeed %q", sa.eventName, action.Relative.Value)
			return
		}
		ref := from
		if o, ok := c.actors[c.p.resolve(action.Relative.EntityRef)]; ok {
			ref = o.current
		}
		if c.p.resolve(action.Relative.ValueType) == "factor" {
			target = ref * v
		} else {
			target = ref + v
		}
	default:
		c.warnf("event %s: SpeedAction without target", sa.eventName)
		return
	}
	target = math.Max(target, 0)
	duration := c.dynamicsDuration(action.Dynamics, math.Abs(target-from), (from+target)/2)

	typ := entity.EventSpeedChange
	switch {
	case target < epsilon:
		target = 0
		typ = lo.Ternary(duration > 0, entity.EventBrakeAction, entity.EventVehicleStop)
	case from < epsilon:
		typ = entity.EventVehicleStart
	}
	a.current = target
	c.addEvent(sa, typ, duration, map[string]any{
		"speed":         target,
		"dynamicsShape": c.p.resolve(action.Dynamics.Shape),
	})
}

// laneChange LaneChangeAction
// 说明：事件参数targetLane为相对当前车道的偏移（左正右负）；
// 绝对目标车道按OpenDRIVE车道ID换算，跨越参考线时跳过不存在的0号车道
func (c *converter) laneChange(sa storyAction, action *xoscLaneChangeAction) {
	a := sa.actor
	var delta int
	switch {
	case action.Relative != nil:
		v, ok := c.p.num(action.Relative.Value)
		if !ok {
			c.warnf("event %s: invalid RelativeTargetLane %q", sa.eventName, action.Relative.Value)
			return
		}
		delta = int(math.Round(v))
		if o, ok := c.actors[c.p.resolve(action.Relative.EntityRef)]; ok && o != a && o.lane != 0 && a.lane != 0 {
			delta = laneDelta(a.lane, addLane(o.lane, delta))
		}
	case action.Absolute != nil:
		v, ok := c.p.num(action.Absolute.Value)
		if !ok {
			c.warnf("event %s: invalid AbsoluteTargetLane %q", sa.eventName, action.Absolute.Value)
			return
		}
		if a.lane == 0 {
			c.warnf("event %s: lane of %s unknown, absolute target lane used as offset", sa.eventName, a.id)
		}
		delta = laneDelta(a.lane, int(math.Round(v)))
	default:
		c.warnf("event %s: LaneChangeAction without target", sa.eventName)
		return
	}
	a.lane = addLane(a.lane, delta)
	lateral := math.Abs(float64(delta)) * road.DefaultLaneWidth
	c.addEvent(sa, entity.EventLaneChange, c.dynamicsDuration(action.Dynamics, lateral, a.current), map[string]any{
		"targetLane":    float64(delta),
		"dynamicsShape": c.p.resolve(action.Dynamics.Shape),
	})
}

// laneDelta 从车道from到车道to需要跨越的车道数
func laneDelta(from, to int) int {
	d := to - from
	switch {
	case from < 0 && to > 0:
		d--
	case from > 0 && to < 0:
		d++
	}
	return d
}

// addLane 车道lane偏移delta后的车道ID
func addLane(lane, delta int) int {
	if lane == 0 {
		return delta
	}
	n := lane + delta
	switch {
	case lane < 0 && n >= 0:
		n++
	case lane > 0 && n <= 0:
		n--
	}
	return n
}

func (c *converter) teleport(sa storyAction, action *xoscTeleportAction) {
	pos, h, ok := c.world(action.Position)
	if !ok {
		c.warnf("event %s: TeleportAction without WorldPosition, kept as custom event", sa.eventName)
		c.custom(sa, "teleport")
		return
	}
	c.addEvent(sa, entity.EventTeleport, 0, map[string]any{
		"x": pos.X,
		"y": pos.Y,
		"z": pos.Z,
		"h": h,
	})
}

func (c *converter) custom(sa storyAction, kind string) {
	c.addEvent(sa, entity.EventCustom, 0, map[string]any{
		"action": lo.Ternary(sa.actionName != "", sa.actionName, kind),
	})
}

// dynamicsDuration 过渡时长
// 参数：d-动力学描述，change-变化量（速度差或横向距离），speed-期间平均速度
// 说明：time直接使用；distance按平均速度折算；rate按变化率折算
func (c *converter) dynamicsDuration(d xoscDynamics, change, speed float64) float64 {
	v, ok := c.p.num(d.Value)
	if !ok || v <= 0 || c.p.resolve(d.Shape) == "step" {
		return 0
	}
	switch c.p.resolve(d.Dimension) {
	case "distance":
		if speed < epsilon {
			return 0
		}
		return v / speed
	case "rate":
		return change / v
	default:
		return v
	}
}

// addEvent 登记事件，ID为“事件名@对象”，重名时追加序号
func (c *converter) addEvent(sa storyAction, typ entity.EventType, duration float64, parameters map[string]any) {
	name := lo.Ternary(sa.eventName != "", sa.eventName, string(typ))
	base := name + "@" + sa.actor.id
	c.ids[base]++
	id := base
	if n := c.ids[base]; n > 1 {
		id = fmt.Sprintf("%s#%d", base, n)
	}
	s, err := structpb.NewStruct(parameters)
	if err != nil {
		c.warnf("event %s: %v", id, err)
		s = nil
	}
	c.events[sa.actor.id] = append(c.events[sa.actor.id], &entity.ScenarioEvent{
		ID:                    id,
		Name:                  name,
		Time:                  sa.time,
		Type:                  typ,
		VehicleID:             sa.actor.id,
		Priority:              sa.priority,
		MaximumExecutionCount: sa.maxCount,
		Status:                entity.StatusPending,
		Parameters:            s,
		Duration:              duration,
	})
}

// world 读取WorldPosition
// 返回：位置，航向，是否存在
func (c *converter) world(pos xoscPosition) (r3.Vector, float64, bool) {
	w := pos.World
	if w == nil {
		return r3.Vector{}, 0, false
	}
	x, okX := c.p.num(w.X)
	y, okY := c.p.num(w.Y)
	if !okX || !okY {
		return r3.Vector{}, 0, false
	}
	z, _ := c.p.num(w.Z)
	h, _ := c.p.num(w.H)
	return r3.Vector{X: x, Y: y, Z: z}, h, true
}

// vertices 读取折线轨迹的顶点，时间加上offset
func (c *converter) vertices(ft *xoscFollowTrajectory, offset float64) []entity.TrajectoryPoint {
	raw := append(append([]xoscVertex{}, ft.Vertices...), ft.Inline...)
	res := make([]entity.TrajectoryPoint, 0, len(raw))
	for _, v := range raw {
		pos, _, ok := c.world(v.Position)
		if !ok {
			c.warnf("trajectory vertex without WorldPosition ignored")
			continue
		}
		t, ok := c.p.num(v.Time)
		if !ok {
			c.warnf("trajectory vertex without time ignored")
			continue
		}
		res = append(res, entity.TrajectoryPoint{Time: t + offset, Position: pos})
	}
	return res
}

// duration 场景时长
// 算法说明：优先取StopTrigger的SimulationTimeCondition；否则取事件结束与编排轨迹结束的最大值，且不短于默认时长
func (c *converter) duration(stop *xoscTrigger) float64 {
	if t, ok := c.p.firstSimulationTime(stop); ok && t > 0 {
		return t
	}
	end := c.cfg.DefaultDuration
	for _, es := range c.events {
		for _, e := range es {
			if t := e.End(); !math.IsInf(t, 0) {
				end = math.Max(end, t)
			}
		}
	}
	for _, a := range c.order {
		for _, v := range a.vertices {
			if !math.IsNaN(v.Time) && !math.IsInf(v.Time, 0) {
				end = math.Max(end, v.Time)
			}
		}
	}
	return end
}

// sampleInterval 合成轨迹的采样间隔
// 说明：场景过长时放大间隔，使单条轨迹的采样点数不超过MaxSamples
func (c *converter) sampleInterval(duration float64) float64 {
	dt := c.cfg.SampleInterval
	if c.cfg.MaxSamples > 0 && duration/dt > float64(c.cfg.MaxSamples) {
		dt = duration / float64(c.cfg.MaxSamples)
		c.warnf("duration %v too long, sample interval widened to %v", duration, dt)
	}
	return dt
}

// vehicle 生成车辆数据
// 说明：有编排轨迹时直接使用（初始位置补在0时刻）；否则沿初始航向积分速度事件合成轨迹。
// 对象没有初始位置时按声明顺序横向错开一个车道宽度
func (c *converter) vehicle(a *actor, duration, dt float64) *entity.VehicleTrajectoryData {
	origin := a.origin
	if !a.hasOrigin {
		origin = r3.Vector{Y: float64(c.index(a)) * road.DefaultLaneWidth}
	}
	events := c.events[a.id]
	var traj []entity.TrajectoryPoint
	if len(a.vertices) > 0 {
		traj = append(traj, a.vertices...)
		sort.SliceStable(traj, func(i, j int) bool { return traj[i].Time < traj[j].Time })
		if a.hasOrigin && traj[0].Time > 0 {
			traj = append([]entity.TrajectoryPoint{{Time: 0, Position: origin}}, traj...)
		}
	} else {
		traj = synthesize(origin, a.heading, a.speed, events, duration, dt)
	}
	start := 0.0
	if t := traj[0].Time; t > 0 && !math.IsInf(t, 0) {
		start = t
	}
	return &entity.VehicleTrajectoryData{
		ID:           a.id,
		Name:         a.name,
		Type:         a.typ,
		Trajectory:   traj,
		StartTime:    start,
		EndTime:      duration,
		InitialSpeed: a.speed,
		Events:       events,
	}
}

func (c *converter) index(a *actor) int {
	_, i, _ := lo.FindIndexOf(c.order, func(o *actor) bool { return o == a })
	return i
}

// timeline 所有事件按(Time, ID)排序
func (c *converter) timeline() []*entity.ScenarioEvent {
	all := lo.Flatten(lo.Values(c.events))
	sort.Slice(all, func(i, j int) bool {
		if all[i].Time != all[j].Time {
			return all[i].Time < all[j].Time
		}
		return strings.Compare(all[i].ID, all[j].ID) < 0
	})
	return all
}
