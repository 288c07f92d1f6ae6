package parser

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/vehicle"
)

// speedSegment 速度曲线上由一个速度类事件引起的一段过渡
type speedSegment struct {
	start    float64
	duration float64
	from, to float64
	shape    vehicle.Shape
}

// speedProfile 分段速度曲线，后开始的过渡覆盖先前的过渡
type speedProfile struct {
	v0   float64
	segs []speedSegment
}

func newSpeedProfile(v0 float64, events []*entity.ScenarioEvent) *speedProfile {
	sp := &speedProfile{v0: v0}
	for _, e := range events {
		var to float64
		switch e.Type {
		case entity.EventVehicleStart, entity.EventSpeedChange:
			v, ok := e.NumberParam("speed")
			if !ok {
				continue
			}
			to = v
		case entity.EventVehicleStop, entity.EventBrakeAction:
		default:
			continue
		}
		shape, _ := e.StringParam("dynamicsShape")
		sp.segs = append(sp.segs, speedSegment{
			start:    e.Time,
			duration: math.Max(e.Duration, 0),
			from:     sp.at(e.Time),
			to:       to,
			shape:    vehicle.ShapeOf(shape),
		})
	}
	return sp
}

// at t时刻的速度
func (sp *speedProfile) at(t float64) float64 {
	for i := len(sp.segs) - 1; i >= 0; i-- {
		s := sp.segs[i]
		if s.start > t {
			continue
		}
		if s.duration <= 0 || t >= s.start+s.duration {
			return s.to
		}
		return s.from + (s.to-s.from)*s.shape((t-s.start)/s.duration)
	}
	return sp.v0
}

// synthesize 为没有编排轨迹的对象合成轨迹
// 参数：origin-初始位置，heading-初始航向，v0-初始速度，events-该对象的事件（按时间排序），
// duration-场景时长，dt-采样间隔
// 算法说明：沿初始航向按梯形公式积分速度曲线，每个采样点记录速度；
// 换道与瞬移在回放时由车辆状态叠加，不体现在轨迹中
func synthesize(origin r3.Vector, heading, v0 float64, events []*entity.ScenarioEvent, duration, dt float64) []entity.TrajectoryPoint {
	sp := newSpeedProfile(v0, events)
	if duration <= 0 || dt <= 0 {
		return []entity.TrajectoryPoint{{Time: 0, Position: origin, Velocity: lo.ToPtr(sp.at(0))}}
	}
	dir := r3.Vector{X: math.Cos(heading), Y: math.Sin(heading)}
	n := max(int(math.Ceil(duration/dt-epsilon)), 1)
	points := make([]entity.TrajectoryPoint, 0, n+1)
	pos := origin
	prevT, prevV := 0.0, sp.at(0)
	for i := 0; i <= n; i++ {
		t := math.Min(float64(i)*dt, duration)
		v := sp.at(t)
		if i > 0 {
			pos = pos.Add(dir.Mul((prevV + v) / 2 * (t - prevT)))
		}
		points = append(points, entity.TrajectoryPoint{Time: t, Position: pos, Velocity: lo.ToPtr(v)})
		prevT, prevV = t, v
	}
	return points
}
