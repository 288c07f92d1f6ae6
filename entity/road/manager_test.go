package road_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/road"
)

func TestManager(t *testing.T) {
	m := road.NewManager()
	assert.Equal(t, road.DefaultLaneWidth, m.MeanLaneWidth())

	m.Init([]*entity.Road{
		{ID: "2", LaneCount: 2, LaneWidth: 3},
		{ID: "1", LaneCount: 1, LaneWidth: 4.5},
		{ID: "3"},
	})
	require.Len(t, m.Roads(), 3)
	assert.Equal(t, "1", m.Roads()[0].ID)
	assert.InDelta(t, 3.5, m.MeanLaneWidth(), 1e-12)

	r, err := m.GetOrError("2")
	require.NoError(t, err)
	assert.Equal(t, 2, r.LaneCount)
	_, err = m.GetOrError("x")
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get("x") })
}

func TestSampleLineAndArc(t *testing.T) {
	r := &entity.Road{Geometry: []entity.RoadGeometry{
		{S: 0, X: 0, Y: 0, Heading: 0, Length: 10},
		// 半径10的左转四分之一圆
		{S: 10, X: 10, Y: 0, Heading: 0, Length: math.Pi * 5, Curvature: 0.1},
	}}
	pts := road.Sample(r, 1)
	require.NotEmpty(t, pts)
	assert.InDelta(t, 0, pts[0].X, 1e-9)
	last := pts[len(pts)-1]
	assert.InDelta(t, 20, last.X, 1e-9)
	assert.InDelta(t, 10, last.Y, 1e-9)
	// 直线段11个点，圆弧段去掉重合起点后16个点
	assert.Len(t, pts, 11+16)
}

func TestSampleLongGeometryIsCapped(t *testing.T) {
	r := &entity.Road{Geometry: []entity.RoadGeometry{{Length: 1e12}}}
	pts := road.Sample(r, 0)
	assert.Len(t, pts, road.MaxGeometrySamples+1)
	assert.InDelta(t, 1e12, pts[len(pts)-1].X, 1)
}
