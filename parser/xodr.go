package parser

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/entity/road"
)

// OpenDRIVE文档中用到的子集

type xodrDocument struct {
	XMLName xml.Name   `xml:"OpenDRIVE"`
	Header  xodrHeader `xml:"header"`
	Roads   []xodrRoad `xml:"road"`
}

type xodrHeader struct {
	RevMajor string `xml:"revMajor,attr"`
	RevMinor string `xml:"revMinor,attr"`
	Name     string `xml:"name,attr"`
}

type xodrRoad struct {
	ID         string            `xml:"id,attr"`
	Name       string            `xml:"name,attr"`
	Length     string            `xml:"length,attr"`
	Junction   string            `xml:"junction,attr"`
	Geometries []xodrGeometry    `xml:"planView>geometry"`
	Sections   []xodrLaneSection `xml:"lanes>laneSection"`
}

type xodrGeometry struct {
	S      string `xml:"s,attr"`
	X      string `xml:"x,attr"`
	Y      string `xml:"y,attr"`
	Hdg    string `xml:"hdg,attr"`
	Length string `xml:"length,attr"`
	Line   *struct{} `xml:"line"`
	Arc    *struct {
		Curvature string `xml:"curvature,attr"`
	} `xml:"arc"`
	Spiral *struct {
		CurvStart string `xml:"curvStart,attr"`
		CurvEnd   string `xml:"curvEnd,attr"`
	} `xml:"spiral"`
}

type xodrLaneSection struct {
	S     string     `xml:"s,attr"`
	Left  []xodrLane `xml:"left>lane"`
	Right []xodrLane `xml:"right>lane"`
}

type xodrLane struct {
	ID     string `xml:"id,attr"`
	Type   string `xml:"type,attr"`
	Widths []struct {
		SOffset string `xml:"sOffset,attr"`
		A       string `xml:"a,attr"`
	} `xml:"width"`
}

// convertRoads 将OpenDRIVE文档转换为道路摘要
// 算法说明：
// 1. planView几何：line直接转换，arc记录曲率，spiral按首末曲率均值近似为圆弧，其他类型（poly3等）按直线处理并告警
// 2. 车道：只统计第一个laneSection中type为driving的车道，宽度取第一条width记录的常数项a
// 返回：道路摘要，告警
func convertRoads(name string, data []byte) ([]*entity.Road, []string, error) {
	var doc xodrDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode OpenDRIVE %s: %w", name, err)
	}
	p := params{}
	var warnings []string
	roads := lo.Map(doc.Roads, func(r xodrRoad, _ int) *entity.Road {
		length, _ := p.num(r.Length)
		rd := &entity.Road{
			ID:         r.ID,
			Name:       r.Name,
			Length:     length,
			JunctionID: lo.Ternary(strings.TrimSpace(r.Junction) == "", "-1", r.Junction),
		}
		for _, g := range r.Geometries {
			rg := entity.RoadGeometry{}
			rg.S, _ = p.num(g.S)
			rg.X, _ = p.num(g.X)
			rg.Y, _ = p.num(g.Y)
			rg.Heading, _ = p.num(g.Hdg)
			rg.Length, _ = p.num(g.Length)
			switch {
			case g.Line != nil:
			case g.Arc != nil:
				rg.Curvature, _ = p.num(g.Arc.Curvature)
			case g.Spiral != nil:
				a, _ := p.num(g.Spiral.CurvStart)
				b, _ := p.num(g.Spiral.CurvEnd)
				rg.Curvature = (a + b) / 2
			default:
				warnings = append(warnings, fmt.Sprintf("%s: road %s has unsupported geometry at s=%s, treated as line", name, r.ID, g.S))
			}
			rd.Geometry = append(rd.Geometry, rg)
		}
		if len(r.Sections) > 0 {
			sec := r.Sections[0]
			driving := lo.Filter(append(append([]xodrLane{}, sec.Left...), sec.Right...), func(l xodrLane, _ int) bool {
				return l.Type == "driving"
			})
			rd.LaneCount = len(driving)
			if len(driving) > 0 {
				rd.LaneWidth = lo.Mean(lo.Map(driving, func(l xodrLane, _ int) float64 {
					if len(l.Widths) == 0 {
						return road.DefaultLaneWidth
					}
					w, ok := p.num(l.Widths[0].A)
					if !ok || w <= 0 {
						return road.DefaultLaneWidth
					}
					return w
				}))
			}
		}
		return rd
	})
	return roads, warnings, nil
}
