package entity

import "github.com/golang/geo/r3"

// Manager依赖倒置

// VehicleStateUpdate 事件产生的车辆状态增量
// 功能：EventProcessor输出、VehicleStateManager消费的数据结构
// 说明：指针字段为nil表示该通道不变
type VehicleStateUpdate struct {
	VehicleID          string
	EventID            string
	Type               EventType
	Priority           EventPriority
	StartTime          float64    // 过渡开始时刻，即事件的触发时刻（秒）
	TargetSpeed        *float64   // 目标速度（米/秒）
	TargetLane         *int       // 相对当前车道的目标车道偏移（左正右负）
	Position           *r3.Vector // 瞬移目标位置
	TransitionDuration float64    // 过渡时长（秒），0表示立即生效
	DynamicsShape      string     // linear|cubic|sinusoidal|step
}

// entity/road/manager.go的依赖倒置
type IRoadManager interface {
	Init(roads []*Road) // 初始化

	// 输入Road ID，查找Road，如果不存在则panic
	Get(id string) *Road
	// 输入Road ID，查找Road，如果不存在则返回error
	GetOrError(id string) (*Road, error)

	Roads() []*Road         // 所有道路（按ID排序）
	MeanLaneWidth() float64 // 所有道路行车道的平均宽度
}

// entity/vehicle/manager.go的依赖倒置
type IVehicleManager interface {
	InitializeVehicles(vehicles []*VehicleTrajectoryData) // 初始化

	// 输入车辆ID，查找车辆数据，如果不存在则返回error
	GetOrError(id string) (*VehicleTrajectoryData, error)
	VehicleData() map[string]*VehicleTrajectoryData

	ApplyStateUpdates(updates []VehicleStateUpdate, t float64) // 应用事件增量
	UpdateVehicleStates(t float64)                              // 推进过渡并刷新位置
	Reset()                                                     // 恢复到初始状态
	VisibleCount() int                                          // 可见车辆数
}
