package vehicle

import (
	"math"

	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

// Shape 过渡曲线，输入归一化时间x∈[0,1]，输出归一化进度
type Shape func(x float64) float64

var shapes = map[string]Shape{
	"linear": func(x float64) float64 { return x },
	// 三次平滑（两端导数为0）
	"cubic": func(x float64) float64 { return x * x * (3 - 2*x) },
	"sinusoidal": func(x float64) float64 {
		return (1 - math.Cos(math.Pi*x)) / 2
	},
	// 立即跳变到目标值
	"step": func(float64) float64 { return 1 },
}

// ShapeOf 按名称获取过渡曲线，未知名称返回linear
func ShapeOf(name string) Shape {
	if s, ok := shapes[name]; ok {
		return s
	}
	return shapes["linear"]
}

const epsilon = 1e-6

// transition 单个通道（速度或横向偏移）上的过渡
type transition struct {
	from, to  float64
	start     float64 // 开始时刻（秒）
	duration  float64
	shape     Shape
	eventID   string
	eventType entity.EventType
}

// value 计算时刻t的通道值
// 返回：当前值，过渡是否结束
// 说明：t早于开始时刻时保持起始值；duration为0时立即到达目标值
func (tr *transition) value(t float64) (float64, bool) {
	if tr.duration <= 0 {
		return tr.to, true
	}
	x := (t - tr.start) / tr.duration
	if x >= 1 {
		return tr.to, true
	}
	if x <= 0 {
		return tr.from, false
	}
	v := tr.from + (tr.to-tr.from)*tr.shape(x)
	return v, false
}
