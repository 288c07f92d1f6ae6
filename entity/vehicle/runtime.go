package vehicle

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/trajectory"
)

// RuntimeState 车辆运行时状态
// 功能：由轨迹插值与事件过渡合成的每帧状态，不持久化，可由(轨迹, 事件, 时间)重建
type RuntimeState struct {
	CurrentSpeed       float64          `json:"currentSpeed"`
	TargetSpeed        float64          `json:"targetSpeed"`
	IsInTransition     bool             `json:"isInTransition"`
	TransitionType     entity.EventType `json:"transitionType,omitempty"`
	TransitionDuration float64          `json:"transitionDuration"`

	Position          r3.Vector `json:"position"`
	Rotation          r3.Vector `json:"rotation"`
	Progress          float64   `json:"progress"`
	RemainingDistance float64   `json:"remainingDistance"`
	Visible           bool      `json:"visible"`

	LaneOffset       float64   `json:"laneOffset"`       // 当前横向偏移（米，左正）
	TargetLaneOffset float64   `json:"targetLaneOffset"` // 目标横向偏移（米）
	TeleportOffset   r3.Vector `json:"teleportOffset"`   // 瞬移产生的持久位移
}

// Vehicle 车辆实体
// 功能：静态轨迹数据与运行时状态的组合
type Vehicle struct {
	data   *entity.VehicleTrajectoryData
	interp *trajectory.Interpolator

	state RuntimeState
	lane  int // 已提交的目标车道（相对初始车道）

	speedTr *transition
	laneTr  *transition
}

func newVehicle(data *entity.VehicleTrajectoryData) *Vehicle {
	v := &Vehicle{
		data:   data,
		interp: trajectory.New(data.Trajectory),
	}
	v.reset()
	return v
}

// reset 恢复到初始状态
func (v *Vehicle) reset() {
	speed := v.data.InitialSpeed
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 {
		speed = 0
	}
	v.state = RuntimeState{CurrentSpeed: speed, TargetSpeed: speed}
	v.lane = 0
	v.speedTr = nil
	v.laneTr = nil
}

// ID 车辆ID
func (v *Vehicle) ID() string {
	return v.data.ID
}

// Data 静态数据
func (v *Vehicle) Data() *entity.VehicleTrajectoryData {
	return v.data
}

// State 运行时状态的副本
func (v *Vehicle) State() RuntimeState {
	return v.state
}

func (v *Vehicle) inTransition() bool {
	return v.speedTr != nil || v.laneTr != nil
}

// apply 应用一条状态增量
// 算法说明：
// 1. skip：任一通道正在过渡时丢弃
// 2. overwrite：取消所有通道上的过渡（冻结在当前值），再开始本增量的过渡。
// 调用前状态需已推进到时刻t，否则冻结值是上一帧的值
// 3. parallel：只替换本增量所在通道的过渡，其他通道继续
// 4. 瞬移立即生效，记录为持久位移
// 返回：是否被应用
func (v *Vehicle) apply(u entity.VehicleStateUpdate, t float64, laneWidth float64) bool {
	switch u.Priority {
	case entity.PrioritySkip:
		if v.inTransition() {
			return false
		}
	case entity.PriorityParallel:
	default:
		v.freeze(laneWidth)
	}

	start := u.StartTime
	if math.IsNaN(start) || start > t {
		start = t
	}
	shape := ShapeOf(u.DynamicsShape)
	if u.TargetSpeed != nil {
		v.speedTr = &transition{
			from:      v.state.CurrentSpeed,
			to:        *u.TargetSpeed,
			start:     start,
			duration:  u.TransitionDuration,
			shape:     shape,
			eventID:   u.EventID,
			eventType: u.Type,
		}
		v.state.TargetSpeed = *u.TargetSpeed
	}
	if u.TargetLane != nil {
		v.lane += *u.TargetLane
		v.laneTr = &transition{
			from:      v.state.LaneOffset,
			to:        float64(v.lane) * laneWidth,
			start:     start,
			duration:  u.TransitionDuration,
			shape:     shape,
			eventID:   u.EventID,
			eventType: u.Type,
		}
		v.state.TargetLaneOffset = v.laneTr.to
	}
	if u.Position != nil {
		tf := v.interp.At(t)
		v.state.TeleportOffset = u.Position.Sub(lateral(tf, v.state.LaneOffset))
	}
	if v.inTransition() {
		v.state.IsInTransition = true
		v.state.TransitionType = u.Type
		v.state.TransitionDuration = u.TransitionDuration
	}
	return true
}

// freeze 取消所有过渡，目标值改为当前值
// 说明：换道被取消时车辆停留在当前横向位置，后续相对换道以最近的车道为基准
func (v *Vehicle) freeze(laneWidth float64) {
	if v.speedTr != nil {
		v.state.TargetSpeed = v.state.CurrentSpeed
		v.speedTr = nil
	}
	if v.laneTr != nil {
		v.state.TargetLaneOffset = v.state.LaneOffset
		if laneWidth > epsilon {
			v.lane = int(math.Round(v.state.LaneOffset / laneWidth))
		}
		v.laneTr = nil
	}
}

// advance 将速度与横向偏移通道推进到时刻t
func (v *Vehicle) advance(t float64) {
	if v.speedTr != nil {
		speed, done := v.speedTr.value(t)
		v.state.CurrentSpeed = speed
		if done && math.Abs(speed-v.state.TargetSpeed) < epsilon {
			v.state.CurrentSpeed = v.state.TargetSpeed
			v.speedTr = nil
		}
	}
	if v.laneTr != nil {
		offset, done := v.laneTr.value(t)
		v.state.LaneOffset = offset
		if done && math.Abs(offset-v.state.TargetLaneOffset) < epsilon {
			v.state.LaneOffset = v.state.TargetLaneOffset
			v.laneTr = nil
		}
	}
	v.state.IsInTransition = v.inTransition()
	if !v.state.IsInTransition {
		v.state.TransitionType = ""
		v.state.TransitionDuration = 0
	}
}

// update 刷新时刻t的运行时状态
// 算法说明：
// 1. 推进过渡通道
// 2. 轨迹插值得到基准位姿，叠加横向偏移（沿航向左侧法向）与瞬移位移
// 3. 可见性：StartTime ≤ t ≤ EndTime
func (v *Vehicle) update(t float64) {
	v.advance(t)
	tf := v.interp.At(t)
	v.state.Position = lateral(tf, v.state.LaneOffset).Add(v.state.TeleportOffset)
	v.state.Rotation = tf.Rotation
	v.state.Progress = tf.Progress
	v.state.RemainingDistance = tf.RemainingDistance
	v.state.Visible = v.data.StartTime <= t && t <= v.data.EndTime
}

// lateral 位姿沿航向左侧法向偏移offset后的位置
func lateral(tf trajectory.Transform, offset float64) r3.Vector {
	if offset == 0 {
		return tf.Position
	}
	h := tf.Rotation.Z
	return tf.Position.Add(r3.Vector{X: -math.Sin(h), Y: math.Cos(h)}.Mul(offset))
}
