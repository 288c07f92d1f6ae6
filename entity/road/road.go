package road

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

// MaxGeometrySamples 单段几何的采样点上限，超长几何自动放大步长
const MaxGeometrySamples = 1000

// Sample 沿道路参考线按固定步长采样
// 功能：将planView几何（直线/圆弧）展开为折线，供渲染层绘制路面
// 参数：r-道路，step-采样步长（米），不大于0时取1米
// 返回：折线顶点，每段几何的起点与终点都包含在内
func Sample(r *entity.Road, step float64) []r3.Vector {
	if step <= 0 || math.IsNaN(step) {
		step = 1
	}
	res := make([]r3.Vector, 0)
	for _, g := range r.Geometry {
		n := 1
		if segs := math.Ceil(g.Length / step); segs > 1 {
			n = int(math.Min(segs, MaxGeometrySamples))
		}
		for i := 0; i <= n; i++ {
			if i == 0 && len(res) > 0 {
				// 与上一段的终点重合
				continue
			}
			res = append(res, PointAt(g, g.Length*float64(i)/float64(n)))
		}
	}
	return res
}

// PointAt 计算几何段上距起点ds处的坐标
// 算法说明：
// 1. 直线：沿起点航向前进ds
// 2. 圆弧：航向变化ds*k，弦长由圆心角推出
func PointAt(g entity.RoadGeometry, ds float64) r3.Vector {
	if math.Abs(g.Curvature) < 1e-12 {
		return r3.Vector{
			X: g.X + ds*math.Cos(g.Heading),
			Y: g.Y + ds*math.Sin(g.Heading),
		}
	}
	k := g.Curvature
	dh := ds * k
	return r3.Vector{
		X: g.X + (math.Sin(g.Heading+dh)-math.Sin(g.Heading))/k,
		Y: g.Y - (math.Cos(g.Heading+dh)-math.Cos(g.Heading))/k,
	}
}
