package event

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

// Statistics 事件统计
type Statistics struct {
	Total         int                        `json:"total"`
	ByType        map[entity.EventType]int   `json:"byType"`
	ByVehicle     map[string]int             `json:"byVehicle"`
	ByStatus      map[entity.EventStatus]int `json:"byStatus"`
	TotalDuration float64                    `json:"totalDuration"` // max(time+duration)，没有事件时为0
}

// GetEventStatistics 统计事件数量与场景时长
func (p *Processor) GetEventStatistics() Statistics {
	s := Statistics{
		Total:     len(p.events),
		ByType:    lo.CountValuesBy(p.events, func(e *entity.ScenarioEvent) entity.EventType { return e.Type }),
		ByVehicle: lo.CountValuesBy(p.events, func(e *entity.ScenarioEvent) string { return e.VehicleID }),
		ByStatus:  lo.CountValuesBy(p.events, func(e *entity.ScenarioEvent) entity.EventStatus { return e.Status }),
	}
	if len(p.events) > 0 {
		s.TotalDuration = lo.Max(lo.Map(p.events, func(e *entity.ScenarioEvent, _ int) float64 { return e.End() }))
	}
	return s
}
