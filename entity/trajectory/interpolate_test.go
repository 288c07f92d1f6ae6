package trajectory_test

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/trajectory"
	"github.com/tsinghua-fib-lab/scenario-player/utils/randengine"
)

func pt(t, x, y float64) entity.TrajectoryPoint {
	return entity.TrajectoryPoint{Time: t, Position: r3.Vector{X: x, Y: y}}
}

func ptv(t, x, v float64) entity.TrajectoryPoint {
	return entity.TrajectoryPoint{Time: t, Position: r3.Vector{X: x}, Velocity: &v}
}

func straight() []entity.TrajectoryPoint {
	return []entity.TrajectoryPoint{pt(0, 0, 0), pt(1, 10, 0)}
}

func TestMidpoint(t *testing.T) {
	tf := trajectory.Interpolate(straight(), 0.5)
	assert.InDelta(t, 5, tf.Position.X, 1e-9)
	assert.InDelta(t, 0.5, tf.Progress, 1e-9)
	assert.InDelta(t, 5, tf.RemainingDistance, 1e-9)
	assert.InDelta(t, 0, tf.Rotation.Z, 1e-9)
}

func TestClamping(t *testing.T) {
	traj := straight()
	assert.Equal(t, trajectory.Interpolate(traj, 0), trajectory.Interpolate(traj, -1))
	last := trajectory.Interpolate(traj, 10)
	assert.Equal(t, r3.Vector{X: 10}, last.Position)
	assert.Equal(t, 1.0, last.Progress)
	assert.Equal(t, 0.0, last.RemainingDistance)
}

func TestSinglePoint(t *testing.T) {
	traj := []entity.TrajectoryPoint{pt(3, 1, 2)}
	for _, at := range []float64{-5, 0, 3, 100} {
		assert.Equal(t, r3.Vector{X: 1, Y: 2}, trajectory.Interpolate(traj, at).Position)
	}
}

func TestEmpty(t *testing.T) {
	tf := trajectory.Interpolate(nil, 1)
	assert.Equal(t, trajectory.Transform{}, tf)
}

func TestOutOfOrderInput(t *testing.T) {
	traj := []entity.TrajectoryPoint{pt(2, 20, 0), pt(0, 0, 0), pt(1, 10, 0)}
	assert.InDelta(t, 15, trajectory.Interpolate(traj, 1.5).Position.X, 1e-9)
	assert.InDelta(t, 5, trajectory.Interpolate(traj, 0.5).Position.X, 1e-9)
}

func TestMalformedSamplesNeverProduceNaN(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	traj := []entity.TrajectoryPoint{
		pt(0, 0, 0),
		{Time: nan, Position: r3.Vector{X: 100}},
		{Time: 1, Position: r3.Vector{X: nan, Y: inf, Z: 1}},
		{Time: -2, Position: r3.Vector{X: -100}},
		ptv(2, 20, nan),
	}
	it := trajectory.New(traj)
	assert.Equal(t, 3, it.Len())
	for _, at := range []float64{-1, 0, 0.5, 1, 1.5, 2, 3, nan} {
		tf := it.At(at)
		for _, x := range []float64{tf.Position.X, tf.Position.Y, tf.Position.Z, tf.Rotation.Z, tf.Progress, tf.RemainingDistance} {
			require.False(t, math.IsNaN(x) || math.IsInf(x, 0), "t=%v %+v", at, tf)
		}
	}
	// 无效分量由上一个有效点替换
	assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: 1}, it.At(1).Position)
}

func TestHugeCoordinatesStayFinite(t *testing.T) {
	// 路程溢出时进度按零长度轨迹处理
	it := trajectory.New([]entity.TrajectoryPoint{pt(0, -1e308, 0), pt(1, 1e308, 0)})
	for _, at := range []float64{-1, 0, 0.5, 1, 2} {
		tf := it.At(at)
		for _, x := range []float64{tf.Position.X, tf.Rotation.Z, tf.Progress, tf.RemainingDistance} {
			require.False(t, math.IsNaN(x) || math.IsInf(x, 0), "t=%v %+v", at, tf)
		}
	}
	tf := it.At(0.5)
	assert.InDelta(t, 0, tf.Position.X, 1e-9)
	assert.Equal(t, 1.0, tf.Progress)
	assert.Equal(t, 0.0, tf.RemainingDistance)
	assert.Zero(t, it.TotalDistance())
}

func TestVelocityAwareInterpolation(t *testing.T) {
	// 从静止匀加速到20m/s，10米；中间时刻只走了1/4路程
	traj := []entity.TrajectoryPoint{ptv(0, 0, 0), ptv(1, 10, 20)}
	tf := trajectory.Interpolate(traj, 0.5)
	assert.InDelta(t, 2.5, tf.Position.X, 1e-9)

	// 一端缺省速度时退化为线性
	traj[1].Velocity = nil
	assert.InDelta(t, 5, trajectory.Interpolate(traj, 0.5).Position.X, 1e-9)
}

func TestHeadingFollowsTangent(t *testing.T) {
	traj := []entity.TrajectoryPoint{pt(0, 0, 0), pt(1, 0, 10)}
	assert.InDelta(t, math.Pi/2, trajectory.Interpolate(traj, 0.5).Rotation.Z, 1e-9)
}

func TestHeadingIsContinuousAcrossCorners(t *testing.T) {
	// 90度急转弯
	traj := []entity.TrajectoryPoint{pt(0, 0, 0), pt(1, 10, 0), pt(2, 10, 10)}
	it := trajectory.New(traj)
	const dt = 0.001
	prev := it.At(0).Rotation.Z
	maxStep := 0.0
	for at := dt; at <= 2; at += dt {
		h := it.At(at).Rotation.Z
		maxStep = math.Max(maxStep, math.Abs(math.Remainder(h-prev, 2*math.Pi)))
		prev = h
	}
	// 90度在1秒（两个半段）内完成，每毫秒不超过约0.0016弧度
	assert.Less(t, maxStep, 0.01)
	assert.InDelta(t, math.Pi/4, it.At(1).Rotation.Z, 1e-6)
}

func TestHeadingWrapsShortestArc(t *testing.T) {
	// 从接近π的航向转到接近-π的航向，不应绕一整圈
	traj := []entity.TrajectoryPoint{pt(0, 0, 0), pt(1, -10, 0.1), pt(2, -20, -0.1)}
	it := trajectory.New(traj)
	h := it.At(1).Rotation.Z
	assert.Greater(t, math.Abs(h), 3.0)
}

func TestDegenerateSegmentsKeepHeading(t *testing.T) {
	traj := []entity.TrajectoryPoint{pt(0, 0, 0), pt(1, 0, 0), pt(2, 0, 10), pt(3, 0, 10)}
	it := trajectory.New(traj)
	assert.InDelta(t, math.Pi/2, it.At(0.5).Rotation.Z, 1e-9)
	assert.InDelta(t, math.Pi/2, it.At(2.5).Rotation.Z, 1e-9)
}

func TestMemoizedMatchesFresh(t *testing.T) {
	rng := randengine.New(7)
	traj := make([]entity.TrajectoryPoint, 200)
	x := 0.0
	for i := range traj {
		x += rng.Uniform(0, 5)
		traj[i] = pt(float64(i)*0.5, x, rng.Uniform(-1, 1))
	}
	it := trajectory.New(traj)
	// 单调递增查询
	for at := 0.0; at < 100; at += 0.37 {
		assert.Equal(t, trajectory.Interpolate(traj, at), it.At(at))
	}
	// 随机跳转
	for range 200 {
		at := rng.Uniform(-5, 105)
		assert.Equal(t, trajectory.Interpolate(traj, at), it.At(at))
	}
}

func TestPerformance(t *testing.T) {
	traj := make([]entity.TrajectoryPoint, 1000)
	for i := range traj {
		traj[i] = pt(float64(i)*0.1, float64(i), math.Sin(float64(i)/10))
	}
	start := time.Now()
	tf := trajectory.Interpolate(traj, 50.05)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
	assert.InDelta(t, 500.5, tf.Position.X, 1e-6)
}

func BenchmarkPlaybackQueries(b *testing.B) {
	traj := make([]entity.TrajectoryPoint, 1000)
	for i := range traj {
		traj[i] = pt(float64(i)*0.1, float64(i), 0)
	}
	it := trajectory.New(traj)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it.At(float64(i%100000) * 0.001)
	}
}
