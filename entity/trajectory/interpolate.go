package trajectory

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

// Transform 插值结果
type Transform struct {
	Position          r3.Vector
	Rotation          r3.Vector // 只使用Z分量（航向角）
	Progress          float64   // 已行驶路程 / 总路程，[0,1]
	RemainingDistance float64   // 剩余路程（米）
}

// Interpolator 单条轨迹的插值器
// 功能：清洗、排序轨迹点并预计算累计路程与航向，支持按时间快速查询
// 说明：记住上一次命中的轨迹段，回放时时间单调递增的查询几乎是O(1)，随机跳转退化为二分查找
type Interpolator struct {
	points   []point
	cumDist  []float64 // cumDist[i]为从第0个点到第i个点的路程
	headings []float64 // headings[i]为第i段（points[i]→points[i+1]）的航向
	total    float64

	lastSeg int
}

// point 清洗后的轨迹点
type point struct {
	t           float64
	pos         r3.Vector
	v           float64
	hasVelocity bool
}

// Interpolate 计算轨迹在时刻t的位姿
// 功能：无状态版本，每次调用都重新构建插值器
func Interpolate(traj []entity.TrajectoryPoint, t float64) Transform {
	return New(traj).At(t)
}

// New 创建插值器
// 参数：traj-原始轨迹点（可能无序、可能含NaN/Inf）
// 返回：插值器，不会为nil
func New(traj []entity.TrajectoryPoint) *Interpolator {
	it := &Interpolator{points: sanitize(traj)}
	n := len(it.points)
	if n == 0 {
		return it
	}
	it.cumDist = make([]float64, n)
	it.headings = make([]float64, max(n-1, 0))
	heading := 0.0
	found := false
	for i := 0; i+1 < n; i++ {
		d := it.points[i+1].pos.Sub(it.points[i].pos)
		it.cumDist[i+1] = it.cumDist[i] + d.Norm()
		if math.Hypot(d.X, d.Y) > epsilon {
			heading = math.Atan2(d.Y, d.X)
			if !found {
				// 轨迹开头的退化段沿用第一个有效航向
				for j := 0; j < i; j++ {
					it.headings[j] = heading
				}
				found = true
			}
		}
		it.headings[i] = heading
	}
	it.total = it.cumDist[n-1]
	if !finite(it.total) {
		// 坐标量级过大导致路程溢出，按零长度轨迹处理进度
		log.Debugf("trajectory distance overflow, progress degenerated")
		clear(it.cumDist)
		it.total = 0
	}
	return it
}

const epsilon = 1e-9

// Len 有效轨迹点数
func (it *Interpolator) Len() int {
	return len(it.points)
}

// TotalDistance 轨迹总路程
func (it *Interpolator) TotalDistance() float64 {
	return it.total
}

// StartTime 第一个有效点的时间，空轨迹返回0
func (it *Interpolator) StartTime() float64 {
	if len(it.points) == 0 {
		return 0
	}
	return it.points[0].t
}

// EndTime 最后一个有效点的时间，空轨迹返回0
func (it *Interpolator) EndTime() float64 {
	if len(it.points) == 0 {
		return 0
	}
	return it.points[len(it.points)-1].t
}

// At 计算时刻t的位姿
// 算法说明：
// 1. 空轨迹返回原点；单点轨迹、t早于首点或晚于末点时返回对应端点（不外推）
// 2. 定位t所在的轨迹段
// 3. 两端都有速度时按匀加速假设修正段内进度，否则线性
// 4. 航向在段内由“与前段的角平分线”经本段航向过渡到“与后段的角平分线”，保证跨段连续
func (it *Interpolator) At(t float64) Transform {
	n := len(it.points)
	if n == 0 {
		return Transform{}
	}
	if math.IsNaN(t) {
		t = it.points[0].t
	}
	if n == 1 {
		return Transform{Position: it.points[0].pos, Progress: 1}
	}
	if t <= it.points[0].t {
		return it.endpoint(0)
	}
	if t >= it.points[n-1].t {
		return it.endpoint(n - 1)
	}

	i := it.segment(t)
	a, b := it.points[i], it.points[i+1]
	ratio := 1.0
	if dt := b.t - a.t; dt > epsilon {
		ratio = (t - a.t) / dt
	}
	s := ratio
	if a.hasVelocity && b.hasVelocity && a.v+b.v > epsilon {
		s = (a.v*ratio + 0.5*(b.v-a.v)*ratio*ratio) / (0.5 * (a.v + b.v))
		s = math.Min(math.Max(s, 0), 1)
	}
	pos := a.pos.Add(b.pos.Sub(a.pos).Mul(s))
	if !finite(pos.X) || !finite(pos.Y) || !finite(pos.Z) {
		pos = a.pos.Mul(1 - s).Add(b.pos.Mul(s))
	}
	travelled := it.cumDist[i] + (it.cumDist[i+1]-it.cumDist[i])*s
	return Transform{
		Position:          pos,
		Rotation:          r3.Vector{Z: it.heading(i, ratio)},
		Progress:          it.progress(travelled),
		RemainingDistance: math.Max(it.total-travelled, 0),
	}
}

func (it *Interpolator) endpoint(i int) Transform {
	var heading float64
	switch {
	case len(it.headings) == 0:
	case i == 0:
		heading = it.headings[0]
	default:
		heading = it.headings[len(it.headings)-1]
	}
	return Transform{
		Position:          it.points[i].pos,
		Rotation:          r3.Vector{Z: heading},
		Progress:          it.progress(it.cumDist[i]),
		RemainingDistance: it.total - it.cumDist[i],
	}
}

func (it *Interpolator) progress(travelled float64) float64 {
	if it.total <= epsilon {
		return 1
	}
	return math.Min(math.Max(travelled/it.total, 0), 1)
}

// segment 查找满足points[i].t <= t < points[i+1].t的i
// 说明：调用方保证points[0].t < t < points[n-1].t
func (it *Interpolator) segment(t float64) int {
	last := len(it.points) - 2
	if i := it.lastSeg; i <= last {
		if it.points[i].t <= t && t < it.points[i+1].t {
			return i
		}
		if i+1 <= last && it.points[i+1].t <= t && t < it.points[i+2].t {
			it.lastSeg = i + 1
			return i + 1
		}
	}
	// 第一个时间大于t的点的前一个点
	i := sort.Search(len(it.points), func(k int) bool { return it.points[k].t > t }) - 1
	i = min(max(i, 0), last)
	it.lastSeg = i
	return i
}

// heading 段内平滑航向
func (it *Interpolator) heading(i int, ratio float64) float64 {
	cur := it.headings[i]
	if ratio < 0.5 {
		prev := cur
		if i > 0 {
			prev = it.headings[i-1]
		}
		start := lerpAngle(prev, cur, 0.5)
		return lerpAngle(start, cur, ratio*2)
	}
	next := cur
	if i+1 < len(it.headings) {
		next = it.headings[i+1]
	}
	end := lerpAngle(cur, next, 0.5)
	return lerpAngle(cur, end, (ratio-0.5)*2)
}

// lerpAngle 沿最短弧在两个角度之间插值，结果归一化到(-π, π]
func lerpAngle(a, b, ratio float64) float64 {
	d := math.Remainder(b-a, 2*math.Pi)
	return normalizeAngle(a + d*ratio)
}

func normalizeAngle(a float64) float64 {
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
