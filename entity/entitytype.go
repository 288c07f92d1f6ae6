package entity

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r3"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// 坐标约定：r3.Vector，单位米，z轴朝上，XY为地面
// 朝向约定：r3.Vector欧拉角（弧度），只使用Z分量（绕竖直轴的航向角）

// TrajectoryPoint 轨迹点
// 功能：描述车辆在某一时刻的编排位置
// 说明：入库时不保证有序，也不保证数值有效（NaN/Inf），插值器需要自行清洗
type TrajectoryPoint struct {
	Time     float64   // 时间（秒）
	Position r3.Vector // 位置（米）
	Velocity *float64  // 速度（米/秒），可缺省
}

// VehicleTrajectoryData 车辆轨迹数据
// 功能：解析得到的车辆静态数据，加载后只读，只有重新解析才会替换
type VehicleTrajectoryData struct {
	ID           string
	Name         string
	Type         string // car/truck/bus/...
	Trajectory   []TrajectoryPoint
	StartTime    float64 // 出现时间（秒）
	EndTime      float64 // 消失时间（秒）
	InitialSpeed float64 // 初始速度（米/秒）
	Events       []*ScenarioEvent
}

func (v *VehicleTrajectoryData) String() string {
	return fmt.Sprintf("Vehicle{ID=%s, Type=%s, Points=%d, [%.2f, %.2f]}", v.ID, v.Type, len(v.Trajectory), v.StartTime, v.EndTime)
}

// EventType 事件类型
type EventType string

const (
	EventVehicleStart EventType = "vehicle_start"
	EventVehicleStop  EventType = "vehicle_stop"
	EventSpeedChange  EventType = "speed_change"
	EventLaneChange   EventType = "lane_change"
	EventBrakeAction  EventType = "brake_action"
	EventTeleport     EventType = "teleport"
	EventCustom       EventType = "custom"
)

// EventTypes 所有事件类型（固定顺序，用于统计输出）
var EventTypes = []EventType{
	EventVehicleStart, EventVehicleStop, EventSpeedChange, EventLaneChange,
	EventBrakeAction, EventTeleport, EventCustom,
}

// EventPriority 事件优先级，即同一车辆上并发事件的冲突解决规则
type EventPriority string

const (
	PriorityOverwrite EventPriority = "overwrite" // 替换正在进行的过渡
	PrioritySkip      EventPriority = "skip"      // 已有过渡时丢弃
	PriorityParallel  EventPriority = "parallel"  // 不同通道并行，同一通道等同overwrite
)

// ParsePriority 解析优先级字符串，未知值按overwrite处理
func ParsePriority(s string) EventPriority {
	switch EventPriority(s) {
	case PrioritySkip:
		return PrioritySkip
	case PriorityParallel:
		return PriorityParallel
	default:
		// OpenSCENARIO 1.2起overwrite更名为override
		return PriorityOverwrite
	}
}

// EventStatus 事件状态
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusActive    EventStatus = "active"
	StatusCompleted EventStatus = "completed"
)

// ScenarioEvent 场景事件
// 功能：描述在指定仿真时刻作用于某辆车的离散行为
// 说明：Status在一次武装（arming）内单调推进pending→active→completed；
// MaximumExecutionCount为0表示不限次数
type ScenarioEvent struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name,omitempty"`
	Time                  float64          `json:"time"` // 触发时刻（秒）
	Type                  EventType        `json:"type"`
	VehicleID             string           `json:"vehicleId"`
	Priority              EventPriority    `json:"priority"`
	MaximumExecutionCount int32            `json:"maximumExecutionCount"`
	Status                EventStatus      `json:"status"`
	Parameters            *structpb.Struct `json:"parameters,omitempty"`
	Duration              float64          `json:"duration"` // 持续时间（秒）

	ExecutionCount int32 `json:"executionCount"` // 已触发次数
}

// Clone 深拷贝事件
func (e *ScenarioEvent) Clone() *ScenarioEvent {
	c := *e
	if e.Parameters != nil {
		c.Parameters = proto.Clone(e.Parameters).(*structpb.Struct)
	}
	return &c
}

// End 事件结束时刻
func (e *ScenarioEvent) End() float64 {
	return e.Time + e.Duration
}

// NumberParam 读取数值参数
// 返回：参数值，是否存在
func (e *ScenarioEvent) NumberParam(key string) (float64, bool) {
	if e.Parameters == nil {
		return 0, false
	}
	v, ok := e.Parameters.Fields[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

// StringParam 读取字符串参数
func (e *ScenarioEvent) StringParam(key string) (string, bool) {
	if e.Parameters == nil {
		return "", false
	}
	v, ok := e.Parameters.Fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return s.StringValue, true
}

// MarshalJSON 参数按protobuf JSON映射输出为普通对象
func (e *ScenarioEvent) MarshalJSON() ([]byte, error) {
	type plain ScenarioEvent
	out := struct {
		*plain
		Parameters json.RawMessage `json:"parameters,omitempty"`
	}{plain: (*plain)(e)}
	if e.Parameters != nil {
		params, err := protojson.Marshal(e.Parameters)
		if err != nil {
			return nil, err
		}
		out.Parameters = params
	}
	return json.Marshal(out)
}

func (e *ScenarioEvent) String() string {
	return fmt.Sprintf("Event{ID=%s, Type=%s, Vehicle=%s, T=%.2f, Status=%s}", e.ID, e.Type, e.VehicleID, e.Time, e.Status)
}

// Road 道路摘要
// 功能：OpenDRIVE道路的简化描述，供渲染层绘制路面
type Road struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Length     float64        `json:"length"`
	JunctionID string         `json:"junctionId"` // 非路口道路为"-1"
	LaneCount  int            `json:"laneCount"`  // 第一个laneSection中的行车道数量（左右合计）
	LaneWidth  float64        `json:"laneWidth"`  // 行车道平均宽度（米）
	Geometry   []RoadGeometry `json:"geometry"`
}

// RoadGeometry 道路参考线的一段几何
type RoadGeometry struct {
	S         float64 `json:"s"` // 起点沿参考线的距离
	X         float64 `json:"x"` // 起点坐标
	Y         float64 `json:"y"`
	Heading   float64 `json:"hdg"` // 起点航向（弧度）
	Length    float64 `json:"length"`
	Curvature float64 `json:"curvature"` // 0表示直线
}
