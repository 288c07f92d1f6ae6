package parser

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// OpenSCENARIO文档中用到的子集，属性保留字符串以便解析参数引用（$Name）

type xoscDocument struct {
	XMLName               xml.Name             `xml:"OpenSCENARIO"`
	FileHeader            xoscFileHeader       `xml:"FileHeader"`
	ParameterDeclarations []xoscParameterDecl  `xml:"ParameterDeclarations>ParameterDeclaration"`
	RoadNetwork           *xoscRoadNetwork     `xml:"RoadNetwork"`
	Entities              []xoscScenarioObject `xml:"Entities>ScenarioObject"`
	Init                  []xoscPrivate        `xml:"Storyboard>Init>Actions>Private"`
	Stories               []xoscStory          `xml:"Storyboard>Story"`
	StopTrigger           *xoscTrigger         `xml:"Storyboard>StopTrigger"`
}

type xoscFileHeader struct {
	RevMajor    string `xml:"revMajor,attr"`
	RevMinor    string `xml:"revMinor,attr"`
	Date        string `xml:"date,attr"`
	Description string `xml:"description,attr"`
	Author      string `xml:"author,attr"`
}

type xoscParameterDecl struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"parameterType,attr"`
	Value string `xml:"value,attr"`
}

type xoscRoadNetwork struct {
	LogicFile *struct {
		Filepath string `xml:"filepath,attr"`
	} `xml:"LogicFile"`
}

type xoscScenarioObject struct {
	Name       string       `xml:"name,attr"`
	Vehicle    *xoscVehicle `xml:"Vehicle"`
	Pedestrian *struct {
		Name string `xml:"name,attr"`
	} `xml:"Pedestrian"`
	CatalogReference *struct {
		CatalogName string `xml:"catalogName,attr"`
		EntryName   string `xml:"entryName,attr"`
	} `xml:"CatalogReference"`
}

type xoscVehicle struct {
	Name     string `xml:"name,attr"`
	Category string `xml:"vehicleCategory,attr"`
}

type xoscPrivate struct {
	EntityRef string              `xml:"entityRef,attr"`
	Actions   []xoscPrivateAction `xml:"PrivateAction"`
}

type xoscStory struct {
	Name string    `xml:"name,attr"`
	Acts []xoscAct `xml:"Act"`
}

type xoscAct struct {
	Name           string              `xml:"name,attr"`
	ManeuverGroups []xoscManeuverGroup `xml:"ManeuverGroup"`
}

type xoscManeuverGroup struct {
	Name                  string         `xml:"name,attr"`
	MaximumExecutionCount string         `xml:"maximumExecutionCount,attr"`
	Actors                []xoscEntity   `xml:"Actors>EntityRef"`
	Maneuvers             []xoscManeuver `xml:"Maneuver"`
}

type xoscEntity struct {
	EntityRef string `xml:"entityRef,attr"`
}

type xoscManeuver struct {
	Name   string      `xml:"name,attr"`
	Events []xoscEvent `xml:"Event"`
}

type xoscEvent struct {
	Name                  string       `xml:"name,attr"`
	Priority              string       `xml:"priority,attr"`
	MaximumExecutionCount string       `xml:"maximumExecutionCount,attr"`
	Actions               []xoscAction `xml:"Action"`
	StartTrigger          *xoscTrigger `xml:"StartTrigger"`
}

type xoscAction struct {
	Name    string             `xml:"name,attr"`
	Private *xoscPrivateAction `xml:"PrivateAction"`
}

type xoscPrivateAction struct {
	Longitudinal *xoscLongitudinal   `xml:"LongitudinalAction"`
	Lateral      *xoscLateral        `xml:"LateralAction"`
	Teleport     *xoscTeleportAction `xml:"TeleportAction"`
	Routing      *xoscRouting        `xml:"RoutingAction"`
}

type xoscLongitudinal struct {
	Speed *xoscSpeedAction `xml:"SpeedAction"`
}

type xoscLateral struct {
	LaneChange *xoscLaneChangeAction `xml:"LaneChangeAction"`
}

type xoscRouting struct {
	FollowTrajectory *xoscFollowTrajectory `xml:"FollowTrajectoryAction"`
}

type xoscDynamics struct {
	Shape     string `xml:"dynamicsShape,attr"`
	Value     string `xml:"value,attr"`
	Dimension string `xml:"dynamicsDimension,attr"` // time|distance|rate
}

type xoscValue struct {
	Value string `xml:"value,attr"`
}

type xoscSpeedAction struct {
	Dynamics xoscDynamics       `xml:"SpeedActionDynamics"`
	Absolute *xoscValue         `xml:"SpeedActionTarget>AbsoluteTargetSpeed"`
	Relative *xoscRelativeSpeed `xml:"SpeedActionTarget>RelativeTargetSpeed"`
}

type xoscRelativeSpeed struct {
	EntityRef string `xml:"entityRef,attr"`
	Value     string `xml:"value,attr"`
	ValueType string `xml:"speedTargetValueType,attr"` // delta|factor
}

type xoscLaneChangeAction struct {
	Dynamics xoscDynamics      `xml:"LaneChangeActionDynamics"`
	Relative *xoscRelativeLane `xml:"LaneChangeTarget>RelativeTargetLane"`
	Absolute *xoscValue        `xml:"LaneChangeTarget>AbsoluteTargetLane"`
}

type xoscRelativeLane struct {
	EntityRef string `xml:"entityRef,attr"`
	Value     string `xml:"value,attr"`
}

type xoscTeleportAction struct {
	Position xoscPosition `xml:"Position"`
}

type xoscPosition struct {
	World *xoscWorldPosition `xml:"WorldPosition"`
	Lane  *xoscLanePosition  `xml:"LanePosition"`
}

type xoscWorldPosition struct {
	X string `xml:"x,attr"`
	Y string `xml:"y,attr"`
	Z string `xml:"z,attr,omitempty"`
	H string `xml:"h,attr,omitempty"`
}

type xoscLanePosition struct {
	RoadID string `xml:"roadId,attr"`
	LaneID string `xml:"laneId,attr"`
	S      string `xml:"s,attr"`
	Offset string `xml:"offset,attr,omitempty"`
}

type xoscFollowTrajectory struct {
	Vertices []xoscVertex `xml:"TrajectoryRef>Trajectory>Shape>Polyline>Vertex"`
	Inline   []xoscVertex `xml:"Trajectory>Shape>Polyline>Vertex"`
}

type xoscVertex struct {
	Time     string       `xml:"time,attr"`
	Position xoscPosition `xml:"Position"`
}

type xoscTrigger struct {
	ConditionGroups []xoscConditionGroup `xml:"ConditionGroup"`
}

type xoscConditionGroup struct {
	Conditions []xoscCondition `xml:"Condition"`
}

type xoscCondition struct {
	Name           string              `xml:"name,attr"`
	Delay          string              `xml:"delay,attr"`
	Edge           string              `xml:"conditionEdge,attr"`
	SimulationTime *xoscSimulationTime `xml:"ByValueCondition>SimulationTimeCondition"`
}

type xoscSimulationTime struct {
	Value string `xml:"value,attr"`
	Rule  string `xml:"rule,attr"`
}

// params 参数表，解析$Name形式的引用
type params map[string]string

func newParams(decls []xoscParameterDecl) params {
	p := make(params, len(decls))
	for _, d := range decls {
		p[d.Name] = d.Value
	}
	return p
}

// resolve 展开参数引用，未声明的参数原样返回
func (p params) resolve(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "$") {
		if v, ok := p[s[1:]]; ok {
			return v
		}
	}
	return s
}

// num 解析数值属性
// 返回：数值，属性是否存在且合法
// 说明：NaN与±Inf视为非法，走缺省值分支
func (p params) num(s string) (float64, bool) {
	s = p.resolve(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// count 解析执行次数，缺省或非法时为1
func (p params) count(s string) int32 {
	v, ok := p.num(s)
	if !ok || v < 1 {
		return 1
	}
	return int32(v)
}

// firstSimulationTime 触发器中第一个SimulationTimeCondition的触发时刻（含delay）
func (p params) firstSimulationTime(tr *xoscTrigger) (float64, bool) {
	if tr == nil {
		return 0, false
	}
	for _, g := range tr.ConditionGroups {
		for _, c := range g.Conditions {
			if c.SimulationTime == nil {
				continue
			}
			v, ok := p.num(c.SimulationTime.Value)
			if !ok {
				continue
			}
			delay, _ := p.num(c.Delay)
			if t := v + max(delay, 0); !math.IsInf(t, 0) {
				return t, true
			}
		}
	}
	return 0, false
}

func decodeXOSC(data []byte) (*xoscDocument, error) {
	var doc xoscDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode OpenSCENARIO: %w", err)
	}
	return &doc, nil
}
