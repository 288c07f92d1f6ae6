package lod

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
)

// Level 细节层次档位，数值越大质量越高
type Level int32

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	default:
		return fmt.Sprintf("Level(%d)", int32(l))
	}
}

// MarshalText 以名称序列化
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Input 每帧的观测值
type Input struct {
	CameraDistance float64 // 相机到场景中心的距离（米）
	FPS            float64 // 当前帧率，不大于0表示尚未测得
	VehicleCount   int     // 当前（可见）车辆数
}

// Decision 每帧的调节结果
type Decision struct {
	Level      Level `json:"level"`
	Instancing bool  `json:"instancing"`
	Changed    bool  `json:"changed"` // 档位是否在本次评估中变化
}

// PerformanceProfile 性能画像
type PerformanceProfile struct {
	FPS               float64 `json:"fps"`
	LODLevel          Level   `json:"lodLevel"`
	InstancingEnabled bool    `json:"instancingEnabled"`
	StableFrameCount  int     `json:"stableFrameCount"` // 档位连续未变化的评估次数
}

// Governor 细节层次调节器
// 功能：根据相机距离、帧率与车辆数决定全局LOD档位与是否启用实例化渲染
// 说明：
// 1. 距离档位：≤HighDistance为high，≤MediumDistance为medium，否则low
// 2. 负载档位：fps<LowFPS或车辆数>LowVehicles为low；fps<MediumFPS或车辆数>MediumVehicles为medium
// 3. 目标档位取距离档位与负载档位中较低者
// 4. 降档：车辆数与距离造成的压力立即生效；仅由帧率造成的压力需要连续DipFrames次评估，且每次只降一档
// 5. 升档：因负载降下来的档位需要连续RecoveryFrames次良好评估才升一档；仅受距离限制时立即生效
// 6. 实例化：车辆数>InstancingVehicles或fps<InstancingFPS时开启，连续RecoveryFrames次不满足后关闭
// 非线程安全，由调用方保证串行调用
type Governor struct {
	cfg config.LOD

	level         Level
	limitedByLoad bool // 当前档位是否低于距离允许的档位
	started       bool
	dipCount      int
	goodCount     int
	clearCount    int
	instancing    bool
	profile       PerformanceProfile

	current   atomic.Int32 // level的镜像，供指标回调读取
	listeners []func(from, to Level)
	metrics   *metrics
}

// NewGovernor 创建LOD调节器
// 参数：cfg-阈值配置（需已补全默认值）
// 返回：调节器，指标注册失败时返回错误
func NewGovernor(cfg config.LOD) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Governor{cfg: cfg}
	g.Reset()
	m, err := newMetrics(g)
	if err != nil {
		return nil, err
	}
	g.metrics = m
	return g, nil
}

// Reset 场景重新加载时恢复初始状态
func (g *Governor) Reset() {
	g.level = LevelHigh
	g.current.Store(int32(LevelHigh))
	g.limitedByLoad = false
	g.started = false
	g.dipCount = 0
	g.goodCount = 0
	g.clearCount = 0
	g.instancing = false
	g.profile = PerformanceProfile{LODLevel: LevelHigh}
}

// OnTierChange 注册档位变化监听（渲染层据此释放资源），在档位变化后同步调用
func (g *Governor) OnTierChange(f func(from, to Level)) {
	g.listeners = append(g.listeners, f)
}

// Level 当前全局档位
func (g *Governor) Level() Level {
	return g.level
}

// Profile 当前性能画像
func (g *Governor) Profile() PerformanceProfile {
	return g.profile
}

// DistanceLevel 仅按距离计算档位，距离单调不增时档位单调不降
func (g *Governor) DistanceLevel(d float64) Level {
	switch {
	case math.IsNaN(d) || d <= g.cfg.HighDistance:
		return LevelHigh
	case d <= g.cfg.MediumDistance:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ForDistance 单个物体的档位：按物体距离计算，不超过当前全局档位
func (g *Governor) ForDistance(d float64) Level {
	return min(g.DistanceLevel(d), g.level)
}

func (g *Governor) countLevel(n int) Level {
	switch {
	case n > g.cfg.LowVehicles:
		return LevelLow
	case n > g.cfg.MediumVehicles:
		return LevelMedium
	default:
		return LevelHigh
	}
}

func (g *Governor) fpsLevel(fps float64) Level {
	switch {
	case !fpsKnown(fps):
		return LevelHigh
	case fps < g.cfg.LowFPS:
		return LevelLow
	case fps < g.cfg.MediumFPS:
		return LevelMedium
	default:
		return LevelHigh
	}
}

func fpsKnown(fps float64) bool {
	return fps > 0 && !math.IsNaN(fps) && !math.IsInf(fps, 0)
}

// Evaluate 评估一帧
// 参数：in-本帧观测值
// 返回：档位与实例化决定
func (g *Governor) Evaluate(in Input) Decision {
	distLevel := g.DistanceLevel(in.CameraDistance)
	pressure := min(distLevel, g.countLevel(in.VehicleCount)) // 立即生效的压力
	fpsLevel := g.fpsLevel(in.FPS)
	target := min(pressure, fpsLevel)

	old := g.level
	next := old
	switch {
	case !g.started:
		next = target
		g.started = true
	case target < old:
		g.goodCount = 0
		next = min(old, pressure)
		if fpsLevel < next {
			g.dipCount++
			if g.dipCount >= g.cfg.DipFrames {
				next--
				g.dipCount = 0
			}
		} else {
			g.dipCount = 0
		}
	case target > old:
		g.dipCount = 0
		if !g.limitedByLoad {
			next = target
			break
		}
		g.goodCount++
		if g.goodCount >= g.cfg.RecoveryFrames {
			next = old + 1
			g.goodCount = 0
		}
	default:
		g.dipCount = 0
		g.goodCount = 0
	}
	if next != old {
		g.limitedByLoad = next < distLevel
	}
	g.evaluateInstancing(in)

	g.level = next
	g.current.Store(int32(next))
	g.profile.FPS = in.FPS
	g.profile.LODLevel = next
	g.profile.InstancingEnabled = g.instancing
	changed := next != old
	if changed {
		g.profile.StableFrameCount = 0
		log.Debugf("lod %v -> %v (distance=%.1f fps=%.1f vehicles=%d)", old, next, in.CameraDistance, in.FPS, in.VehicleCount)
		g.metrics.recordTierChange(old, next)
		for _, f := range g.listeners {
			f(old, next)
		}
	} else {
		g.profile.StableFrameCount++
	}
	return Decision{Level: next, Instancing: g.instancing, Changed: changed}
}

func (g *Governor) evaluateInstancing(in Input) {
	want := in.VehicleCount > g.cfg.InstancingVehicles || (fpsKnown(in.FPS) && in.FPS < g.cfg.InstancingFPS)
	switch {
	case want:
		g.clearCount = 0
		if !g.instancing {
			g.instancing = true
			g.metrics.recordInstancing(true)
		}
	case g.instancing:
		g.clearCount++
		if g.clearCount >= g.cfg.RecoveryFrames {
			g.instancing = false
			g.clearCount = 0
			g.metrics.recordInstancing(false)
		}
	}
}
