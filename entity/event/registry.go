package event

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

// TypeInfo 事件类型的展示信息
type TypeInfo struct {
	Color       string `json:"color"`       // 时间轴标记颜色（#RRGGBB）
	DisplayName string `json:"displayName"` // 展示名称
}

// 事件类型注册表
var registry = map[entity.EventType]TypeInfo{
	entity.EventVehicleStart: {Color: "#4CAF50", DisplayName: "Vehicle Start"},
	entity.EventVehicleStop:  {Color: "#F44336", DisplayName: "Vehicle Stop"},
	entity.EventSpeedChange:  {Color: "#2196F3", DisplayName: "Speed Change"},
	entity.EventLaneChange:   {Color: "#FF9800", DisplayName: "Lane Change"},
	entity.EventBrakeAction:  {Color: "#9C27B0", DisplayName: "Brake"},
	entity.EventTeleport:     {Color: "#00BCD4", DisplayName: "Teleport"},
	entity.EventCustom:       {Color: "#9E9E9E", DisplayName: "Custom"},
}

// LookupType 查询事件类型的展示信息，未注册的类型按custom展示
func LookupType(t entity.EventType) TypeInfo {
	if info, ok := registry[t]; ok {
		return info
	}
	return registry[entity.EventCustom]
}

// VisualizationEvent 时间轴标记
type VisualizationEvent struct {
	Event            *entity.ScenarioEvent `json:"event"`
	TimelinePosition float64               `json:"timelinePosition"` // time/duration，[0,1]
	Color            string                `json:"color"`
	DisplayName      string                `json:"displayName"`
}

// GetEventsForVisualization 生成时间轴标记
// 参数：duration-时间轴总时长，不大于0时所有标记位于0
func (p *Processor) GetEventsForVisualization(duration float64) []VisualizationEvent {
	return lo.Map(p.events, func(e *entity.ScenarioEvent, _ int) VisualizationEvent {
		pos := 0.0
		if duration > 0 {
			pos = lo.Clamp(e.Time/duration, 0, 1)
		}
		info := LookupType(e.Type)
		name := info.DisplayName
		if e.Name != "" {
			name = info.DisplayName + ": " + e.Name
		}
		return VisualizationEvent{
			Event:            e.Clone(),
			TimelinePosition: pos,
			Color:            info.Color,
			DisplayName:      name,
		}
	})
}
