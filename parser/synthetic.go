package parser

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/road"
	"github.com/tsinghua-fib-lab/scenario-player/utils/randengine"
)

// 合成场景参数
const (
	syntheticDuration = 60.0
	syntheticLanes    = 4
)

var (
	syntheticCategories = []string{"car", "truck", "bus"}
	syntheticWeights    = []float64{0.7, 0.2, 0.1}
	syntheticPriorities = []entity.EventPriority{entity.PriorityOverwrite, entity.PrioritySkip, entity.PriorityParallel}
	syntheticShapes     = []string{"linear", "cubic", "sinusoidal", "step"}
)

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Synthetic 生成随机OpenSCENARIO场景
// 功能：供命令行演示模式与基准测试使用，相同种子生成相同文档
// 参数：seed-随机数种子，vehicles-车辆数，events-事件数
// 返回：场景文档
// 算法说明：
// 1. 车辆沿x轴排布在syntheticLanes条车道上，初始速度[5, 20)m/s，类型按7:2:1选择car/truck/bus
// 2. 事件随机分配给车辆，触发时刻[0, 60)s，类型按6:3:1选择速度变化、换道、瞬移
func Synthetic(seed uint64, vehicles, events int) (File, error) {
	rng := randengine.New(seed)
	vehicles = max(vehicles, 1)
	doc := xoscDocument{
		FileHeader: xoscFileHeader{
			RevMajor:    "1",
			RevMinor:    "0",
			Date:        "2024-01-01T00:00:00",
			Description: fmt.Sprintf("synthetic scenario seed=%d", seed),
			Author:      "scenario-player",
		},
		StopTrigger: simulationTimeTrigger(syntheticDuration),
	}
	ids := make([]string, vehicles)
	for i := range vehicles {
		id := fmt.Sprintf("v%03d", i)
		ids[i] = id
		doc.Entities = append(doc.Entities, xoscScenarioObject{
			Name:    id,
			Vehicle: &xoscVehicle{Name: id, Category: syntheticCategories[rng.DiscreteDistribution(syntheticWeights)]},
		})
		doc.Init = append(doc.Init, xoscPrivate{
			EntityRef: id,
			Actions: []xoscPrivateAction{
				{Teleport: &xoscTeleportAction{Position: xoscPosition{World: &xoscWorldPosition{
					X: fmtNum(rng.Uniform(0, 50)),
					Y: fmtNum(float64(i%syntheticLanes) * road.DefaultLaneWidth),
					H: "0",
				}}}},
				{Longitudinal: &xoscLongitudinal{Speed: &xoscSpeedAction{
					Dynamics: xoscDynamics{Shape: "step", Value: "0", Dimension: "time"},
					Absolute: &xoscValue{Value: fmtNum(rng.Uniform(5, 20))},
				}}},
			},
		})
	}

	act := xoscAct{Name: "act"}
	for k := range events {
		id := ids[rng.Intn(vehicles)]
		action := xoscPrivateAction{}
		switch rng.DiscreteDistribution([]float64{6, 3, 1}) {
		case 0:
			action.Longitudinal = &xoscLongitudinal{Speed: &xoscSpeedAction{
				Dynamics: xoscDynamics{
					Shape:     syntheticShapes[rng.Intn(len(syntheticShapes))],
					Value:     fmtNum(rng.Uniform(0.5, 4)),
					Dimension: "time",
				},
				Absolute: &xoscValue{Value: fmtNum(rng.Uniform(0, 25))},
			}}
		case 1:
			action.Lateral = &xoscLateral{LaneChange: &xoscLaneChangeAction{
				Dynamics: xoscDynamics{Shape: "sinusoidal", Value: fmtNum(rng.Uniform(1, 3)), Dimension: "time"},
				Relative: &xoscRelativeLane{EntityRef: id, Value: lo.Ternary(rng.PTrue(0.5), "1", "-1")},
			}}
		default:
			action.Teleport = &xoscTeleportAction{Position: xoscPosition{World: &xoscWorldPosition{
				X: fmtNum(rng.Uniform(0, 500)),
				Y: fmtNum(float64(rng.Intn(syntheticLanes)) * road.DefaultLaneWidth),
			}}}
		}
		name := fmt.Sprintf("e%03d", k)
		act.ManeuverGroups = append(act.ManeuverGroups, xoscManeuverGroup{
			Name:                  "mg_" + name,
			MaximumExecutionCount: "1",
			Actors:                []xoscEntity{{EntityRef: id}},
			Maneuvers: []xoscManeuver{{
				Name: "m_" + name,
				Events: []xoscEvent{{
					Name:                  name,
					Priority:              string(syntheticPriorities[rng.Intn(len(syntheticPriorities))]),
					MaximumExecutionCount: strconv.Itoa(1 + rng.Intn(3)),
					Actions:               []xoscAction{{Name: "a_" + name, Private: &action}},
					StartTrigger:          simulationTimeTrigger(rng.Uniform(0, syntheticDuration)),
				}},
			}},
		})
	}
	if len(act.ManeuverGroups) > 0 {
		doc.Stories = []xoscStory{{Name: "story", Acts: []xoscAct{act}}}
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return File{}, fmt.Errorf("marshal synthetic scenario: %w", err)
	}
	return File{
		Name: fmt.Sprintf("synthetic-%d.xosc", seed),
		Data: append([]byte(xml.Header), data...),
	}, nil
}

func simulationTimeTrigger(t float64) *xoscTrigger {
	return &xoscTrigger{ConditionGroups: []xoscConditionGroup{{Conditions: []xoscCondition{{
		Name:           "start",
		Delay:          "0",
		Edge:           "rising",
		SimulationTime: &xoscSimulationTime{Value: fmtNum(t), Rule: "greaterThan"},
	}}}}}
}
