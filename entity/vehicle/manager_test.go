package vehicle_test

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-player/clock"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/road"
	"github.com/tsinghua-fib-lab/scenario-player/entity/vehicle"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
)

type stubContext struct {
	roads *road.RoadManager
}

func (c *stubContext) Clock() *clock.Clock                    { return nil }
func (c *stubContext) RoadManager() entity.IRoadManager       { return c.roads }
func (c *stubContext) VehicleManager() entity.IVehicleManager { return nil }
func (c *stubContext) RuntimeConfig() *config.Config          { return nil }

// laneWidth为3米的上下文
func newContext() *stubContext {
	roads := road.NewManager()
	roads.Init([]*entity.Road{{ID: "r", LaneCount: 2, LaneWidth: 3}})
	return &stubContext{roads: roads}
}

// 沿x轴以10m/s行驶10秒
func straightVehicle(id string, start, end float64) *entity.VehicleTrajectoryData {
	return &entity.VehicleTrajectoryData{
		ID:   id,
		Type: "car",
		Trajectory: []entity.TrajectoryPoint{
			{Time: 0, Position: r3.Vector{}},
			{Time: 10, Position: r3.Vector{X: 100}},
		},
		StartTime:    start,
		EndTime:      end,
		InitialSpeed: 10,
	}
}

func newManager(vs ...*entity.VehicleTrajectoryData) *vehicle.Manager {
	m := vehicle.NewManager(newContext())
	m.InitializeVehicles(vs)
	return m
}

func speedUpdate(id string, start, target, duration float64, p entity.EventPriority) entity.VehicleStateUpdate {
	return entity.VehicleStateUpdate{
		VehicleID:          "ego",
		EventID:            id,
		Type:               entity.EventSpeedChange,
		Priority:           p,
		StartTime:          start,
		TargetSpeed:        &target,
		TransitionDuration: duration,
	}
}

func laneUpdate(id string, start float64, lane int, duration float64, p entity.EventPriority) entity.VehicleStateUpdate {
	return entity.VehicleStateUpdate{
		VehicleID:          "ego",
		EventID:            id,
		Type:               entity.EventLaneChange,
		Priority:           p,
		StartTime:          start,
		TargetLane:         &lane,
		TransitionDuration: duration,
	}
}

func TestInitializeVehicles(t *testing.T) {
	m := newManager(straightVehicle("b", 0, 10), straightVehicle("a", 0, 10), nil)
	st := m.Get("a").State()
	assert.Equal(t, 10.0, st.CurrentSpeed)
	assert.Equal(t, 10.0, st.TargetSpeed)
	assert.False(t, st.IsInTransition)
	assert.Len(t, m.VehicleData(), 2)

	_, err := m.GetOrError("c")
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get("c") })
}

func TestSpeedTransition(t *testing.T) {
	m := newManager(straightVehicle("ego", 0, 10))
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{speedUpdate("s", 1, 20, 2, entity.PriorityOverwrite)}, 1)
	m.UpdateVehicleStates(2)
	st := m.Get("ego").State()
	assert.InDelta(t, 15, st.CurrentSpeed, 1e-9)
	assert.Equal(t, 20.0, st.TargetSpeed)
	assert.True(t, st.IsInTransition)
	assert.Equal(t, entity.EventSpeedChange, st.TransitionType)
	assert.Equal(t, 2.0, st.TransitionDuration)

	m.UpdateVehicleStates(3)
	st = m.Get("ego").State()
	assert.Equal(t, 20.0, st.CurrentSpeed)
	assert.False(t, st.IsInTransition)
}

func TestImmediateUpdate(t *testing.T) {
	m := newManager(straightVehicle("ego", 0, 10))
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{speedUpdate("s", 1, 0, 0, entity.PriorityOverwrite)}, 1)
	m.UpdateVehicleStates(1)
	st := m.Get("ego").State()
	assert.Equal(t, 0.0, st.CurrentSpeed)
	assert.False(t, st.IsInTransition)
}

func TestSkipDroppedWhileInTransition(t *testing.T) {
	m := newManager(straightVehicle("ego", 0, 10))
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{
		speedUpdate("first", 0, 20, 4, entity.PriorityOverwrite),
		speedUpdate("second", 1, 0, 1, entity.PrioritySkip),
	}, 1)
	assert.Equal(t, 20.0, m.Get("ego").State().TargetSpeed)

	// 过渡结束后skip可以生效
	m.UpdateVehicleStates(5)
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{speedUpdate("third", 5, 5, 1, entity.PrioritySkip)}, 5)
	assert.Equal(t, 5.0, m.Get("ego").State().TargetSpeed)
}

func TestOverwriteCancelsOtherChannels(t *testing.T) {
	m := newManager(straightVehicle("ego", 0, 10))
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{speedUpdate("speed", 0, 20, 2, entity.PriorityOverwrite)}, 0)
	// t=1时速度过渡到一半，overwrite的换道冻结速度
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{laneUpdate("lane", 1, 1, 1, entity.PriorityOverwrite)}, 1)
	m.UpdateVehicleStates(3)
	st := m.Get("ego").State()
	assert.InDelta(t, 15, st.CurrentSpeed, 1e-9)
	assert.InDelta(t, 15, st.TargetSpeed, 1e-9)
	assert.InDelta(t, 3, st.LaneOffset, 1e-9)
	assert.False(t, st.IsInTransition)
}

func TestParallelRunsOnOtherChannel(t *testing.T) {
	m := newManager(straightVehicle("ego", 0, 10))
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{speedUpdate("speed", 0, 20, 2, entity.PriorityOverwrite)}, 0)
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{laneUpdate("lane", 1, -1, 1, entity.PriorityParallel)}, 1)
	m.UpdateVehicleStates(1.5)
	st := m.Get("ego").State()
	assert.InDelta(t, 17.5, st.CurrentSpeed, 1e-9)
	assert.InDelta(t, -1.5, st.LaneOffset, 1e-9)

	m.UpdateVehicleStates(2)
	st = m.Get("ego").State()
	assert.Equal(t, 20.0, st.CurrentSpeed)
	assert.InDelta(t, -3, st.LaneOffset, 1e-9)
	// 横向偏移沿航向左侧法向，向右换道y为负
	assert.InDelta(t, 20, st.Position.X, 1e-9)
	assert.InDelta(t, -3, st.Position.Y, 1e-9)
}

func TestParallelOnSameChannelOverwrites(t *testing.T) {
	m := newManager(straightVehicle("ego", 0, 10))
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{
		speedUpdate("a", 0, 20, 2, entity.PriorityOverwrite),
		speedUpdate("b", 0, 0, 2, entity.PriorityParallel),
	}, 0)
	m.UpdateVehicleStates(1)
	assert.InDelta(t, 5, m.Get("ego").State().CurrentSpeed, 1e-9)
}

func TestTeleportIsPersistentOffset(t *testing.T) {
	m := newManager(straightVehicle("ego", 0, 10))
	m.UpdateVehicleStates(2)
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{{
		VehicleID: "ego",
		EventID:   "tp",
		Type:      entity.EventTeleport,
		Priority:  entity.PriorityOverwrite,
		StartTime: 2,
		Position:  &r3.Vector{X: 50, Y: 5},
	}}, 2)
	m.UpdateVehicleStates(2)
	assert.Equal(t, r3.Vector{X: 50, Y: 5}, m.Get("ego").State().Position)
	m.UpdateVehicleStates(3)
	assert.InDelta(t, 60, m.Get("ego").State().Position.X, 1e-9)
	assert.InDelta(t, 5, m.Get("ego").State().Position.Y, 1e-9)
}

func TestVisibilityAndRenderOutput(t *testing.T) {
	m := newManager(
		straightVehicle("late", 5, 10),
		straightVehicle("b", 0, 10),
		straightVehicle("a", 0, 3),
	)
	m.UpdateVehicleStates(4)
	els := m.ConvertAllToVehicleElements()
	require.Len(t, els, 1)
	assert.Equal(t, "b", els[0].ID)
	assert.Equal(t, "car", els[0].Type)
	assert.InDelta(t, 40, els[0].Position.X, 1e-9)
	assert.Equal(t, 1, m.VisibleCount())

	tfs := m.Transforms()
	assert.Equal(t, []string{"a", "b", "late"}, lo.Map(tfs, func(tf vehicle.Transform, _ int) string { return tf.VehicleID }))
	// 不可见车辆仍输出有效位姿
	assert.False(t, tfs[0].Visible)
	assert.InDelta(t, 40, tfs[0].Position.X, 1e-9)

	m.UpdateVehicleStates(5)
	assert.Equal(t, 2, m.VisibleCount())
}

func TestUnknownVehicleUpdateIgnored(t *testing.T) {
	m := newManager(straightVehicle("other", 0, 10))
	assert.NotPanics(t, func() {
		m.ApplyStateUpdates([]entity.VehicleStateUpdate{speedUpdate("s", 0, 1, 1, entity.PriorityOverwrite)}, 0)
	})
}

func TestReset(t *testing.T) {
	m := newManager(straightVehicle("ego", 0, 10))
	m.ApplyStateUpdates([]entity.VehicleStateUpdate{
		speedUpdate("s", 0, 0, 0, entity.PriorityOverwrite),
		laneUpdate("l", 0, 2, 0, entity.PriorityParallel),
	}, 0)
	m.UpdateVehicleStates(1)
	assert.InDelta(t, 6, m.Get("ego").State().LaneOffset, 1e-9)
	m.Reset()
	st := m.Get("ego").State()
	assert.Equal(t, 10.0, st.CurrentSpeed)
	assert.Zero(t, st.LaneOffset)
	assert.False(t, st.IsInTransition)
}

func TestShapes(t *testing.T) {
	for name, want := range map[string]float64{
		"linear":     0.25,
		"cubic":      0.15625,
		"sinusoidal": 0.14644660940672624,
		"step":       1,
		"unknown":    0.25,
	} {
		assert.InDelta(t, want, vehicle.ShapeOf(name)(0.25), 1e-9, name)
	}
	for _, name := range []string{"linear", "cubic", "sinusoidal"} {
		s := vehicle.ShapeOf(name)
		assert.InDelta(t, 0, s(0), 1e-12, name)
		assert.InDelta(t, 1, s(1), 1e-12, name)
	}
}
