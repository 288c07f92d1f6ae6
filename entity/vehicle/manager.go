package vehicle

import (
	"fmt"
	"runtime/debug"
	"sort"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/road"
)

// VehicleElement 渲染层消费的车辆数据
type VehicleElement struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Position r3.Vector `json:"position"`
	Rotation r3.Vector `json:"rotation"`
	Speed    float64   `json:"speed"`
}

// Transform 每帧位姿输出
type Transform struct {
	VehicleID string    `json:"vehicleId"`
	Position  r3.Vector `json:"position"`
	Rotation  r3.Vector `json:"rotation"`
	Visible   bool      `json:"visible"`
}

// Manager 车辆状态管理器
// 功能：合并轨迹插值与事件驱动的行为变化，维护每辆车唯一的运行时状态
type Manager struct {
	ctx entity.ITaskContext

	data     map[string]*Vehicle
	vehicles []*Vehicle // 按ID排序
	raw      map[string]*entity.VehicleTrajectoryData
}

// NewManager 创建车辆管理器
// 参数：ctx-任务上下文（提供道路管理器，用于查询车道宽度），可以为nil
func NewManager(ctx entity.ITaskContext) *Manager {
	return &Manager{
		ctx:      ctx,
		data:     make(map[string]*Vehicle),
		vehicles: make([]*Vehicle, 0),
		raw:      make(map[string]*entity.VehicleTrajectoryData),
	}
}

// InitializeVehicles 初始化所有车辆
// 功能：为每辆车建立插值器并以初始速度播种运行时状态
// 参数：vehicles-车辆静态数据，ID重复时保留后出现的车辆
func (m *Manager) InitializeVehicles(vehicles []*entity.VehicleTrajectoryData) {
	vehicles = lo.Filter(vehicles, func(v *entity.VehicleTrajectoryData, _ int) bool { return v != nil })
	built := parallel.GoMap(vehicles, newVehicle)
	m.data = lo.SliceToMap(built, func(v *Vehicle) (string, *Vehicle) { return v.ID(), v })
	if len(m.data) != len(built) {
		log.Warnf("%d duplicated vehicle ids ignored", len(built)-len(m.data))
	}
	m.vehicles = lo.Values(m.data)
	sort.Slice(m.vehicles, func(i, j int) bool { return m.vehicles[i].ID() < m.vehicles[j].ID() })
	m.raw = lo.MapValues(m.data, func(v *Vehicle, _ string) *entity.VehicleTrajectoryData { return v.data })
	log.Infof("init %d vehicles", len(m.vehicles))
}

// Get 根据ID获取车辆，如果不存在则panic
func (m *Manager) Get(id string) *Vehicle {
	if v, ok := m.data[id]; !ok {
		log.Panicf("no id %s in vehicle data", id)
		return nil
	} else {
		return v
	}
}

// GetOrError 根据ID获取车辆静态数据，如果不存在则返回错误
func (m *Manager) GetOrError(id string) (*entity.VehicleTrajectoryData, error) {
	if v, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %s in vehicle data", id)
	} else {
		return v.data, nil
	}
}

// VehicleData 车辆ID到静态数据的映射（只读）
func (m *Manager) VehicleData() map[string]*entity.VehicleTrajectoryData {
	return m.raw
}

// States 所有车辆运行时状态的副本
func (m *Manager) States() map[string]RuntimeState {
	return lo.MapValues(m.data, func(v *Vehicle, _ string) RuntimeState { return v.state })
}

func (m *Manager) laneWidth() float64 {
	if m.ctx == nil || m.ctx.RoadManager() == nil {
		return road.DefaultLaneWidth
	}
	return m.ctx.RoadManager().MeanLaneWidth()
}

// ApplyStateUpdates 应用事件产生的状态增量
// 功能：按优先级解决同一车辆上的冲突，开始新的过渡
// 参数：updates-状态增量（按事件时间顺序），t-当前仿真时间
// 说明：未知车辆的增量被忽略；单个增量的异常不影响其他增量
func (m *Manager) ApplyStateUpdates(updates []entity.VehicleStateUpdate, t float64) {
	width := m.laneWidth()
	for _, u := range updates {
		v, ok := m.data[u.VehicleID]
		if !ok {
			log.Debugf("ignore update %s for unknown vehicle %s", u.EventID, u.VehicleID)
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("apply update %s to vehicle %s panic: %v\n%s", u.EventID, u.VehicleID, r, debug.Stack())
				}
			}()
			v.advance(t)
			if !v.apply(u, t, width) {
				log.Debugf("skip update %s on vehicle %s in transition", u.EventID, u.VehicleID)
			}
		}()
	}
}

// UpdateVehicleStates 刷新所有车辆在时刻t的状态
// 说明：单辆车更新panic时记录日志，其他车辆照常更新
func (m *Manager) UpdateVehicleStates(t float64) {
	parallel.GoFor(m.vehicles, func(v *Vehicle) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("update vehicle %s panic: %v\n%s", v.ID(), r, debug.Stack())
			}
		}()
		v.update(t)
	})
}

// Reset 所有车辆恢复到初始状态
func (m *Manager) Reset() {
	for _, v := range m.vehicles {
		v.reset()
	}
}

// VisibleCount 可见车辆数
func (m *Manager) VisibleCount() int {
	return lo.CountBy(m.vehicles, func(v *Vehicle) bool { return v.state.Visible })
}

// ConvertAllToVehicleElements 输出可见车辆（按ID排序），是交给渲染层的唯一出口
func (m *Manager) ConvertAllToVehicleElements() []VehicleElement {
	return lo.FilterMap(m.vehicles, func(v *Vehicle, _ int) (VehicleElement, bool) {
		if !v.state.Visible {
			return VehicleElement{}, false
		}
		return VehicleElement{
			ID:       v.ID(),
			Type:     v.data.Type,
			Position: v.state.Position,
			Rotation: v.state.Rotation,
			Speed:    v.state.CurrentSpeed,
		}, true
	})
}

// Transforms 所有车辆的位姿（按ID排序，包含不可见车辆）
func (m *Manager) Transforms() []Transform {
	return lo.Map(m.vehicles, func(v *Vehicle, _ int) Transform {
		return Transform{
			VehicleID: v.ID(),
			Position:  v.state.Position,
			Rotation:  v.state.Rotation,
			Visible:   v.state.Visible,
		}
	})
}
