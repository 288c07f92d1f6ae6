package trajectory

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// sanitize 清洗轨迹点
// 功能：丢弃时间无效的点，替换无效坐标分量，丢弃无效速度，并按时间稳定排序
// 算法说明：
// 1. 时间为NaN/Inf或负数的点直接丢弃
// 2. 按时间稳定排序（同一时刻保持输入顺序）
// 3. 坐标分量为NaN/Inf时，用上一个有效点的同一分量替换（没有则为0）
// 4. 速度为nil、NaN/Inf或负数时视为缺省
func sanitize(traj []entity.TrajectoryPoint) []point {
	res := make([]point, 0, len(traj))
	for _, p := range traj {
		if !finite(p.Time) || p.Time < 0 {
			continue
		}
		pt := point{t: p.Time, pos: p.Position}
		if p.Velocity != nil && finite(*p.Velocity) && *p.Velocity >= 0 {
			pt.v = *p.Velocity
			pt.hasVelocity = true
		}
		res = append(res, pt)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].t < res[j].t })

	var prev r3.Vector
	for i := range res {
		p := &res[i].pos
		if !finite(p.X) {
			p.X = prev.X
		}
		if !finite(p.Y) {
			p.Y = prev.Y
		}
		if !finite(p.Z) {
			p.Z = prev.Z
		}
		prev = *p
	}
	if dropped := len(traj) - len(res); dropped > 0 {
		log.Debugf("dropped %d trajectory points with invalid time", dropped)
	}
	return res
}
