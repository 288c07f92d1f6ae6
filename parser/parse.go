package parser

import (
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
)

// 默认车辆ID，无法解析场景时使用
const DefaultVehicleID = "default_vehicle"

// Parser 场景解析器
// 功能：将OpenSCENARIO/OpenDRIVE文档同步转换为回放所需的车辆、事件与道路
// 说明：解析器本身无状态，可以被多个goroutine同时使用
type Parser struct {
	cfg config.Parser
}

// New 创建解析器
// 参数：cfg-解析配置（零值字段会补全默认值）
func New(cfg config.Parser) *Parser {
	c := config.Config{Parser: cfg}
	c.FillDefaults()
	return &Parser{cfg: c.Parser}
}

// ConvertToVehicleElements 使用默认配置转换单个OpenSCENARIO文档
func ConvertToVehicleElements(doc []byte) ([]*entity.VehicleTrajectoryData, []string) {
	return New(config.Parser{}).ConvertToVehicleElements(doc)
}

// ConvertToVehicleElements 转换单个OpenSCENARIO文档
// 功能：文档无法解析或没有场景对象时，返回恰好一辆默认车辆与一条告警，不会panic
// 参数：doc-OpenSCENARIO文档
// 返回：车辆，告警
func (p *Parser) ConvertToVehicleElements(doc []byte) ([]*entity.VehicleTrajectoryData, []string) {
	res := p.Parse([]File{{Name: "scenario.xosc", Data: doc}}, nil)
	return res.Vehicles, res.Warnings
}

// Parse 解析一组文档
// 功能：.xosc生成车辆与事件，.xodr生成道路，其他扩展名告警后忽略；合并外部校验结果
// 参数：files-原始文档，validation-文件名到校验结论的映射（可为nil）
// 返回：解析结果；没有可用的场景文档时返回兜底场景，不返回错误
func (p *Parser) Parse(files []File, validation map[string]ValidationResult) (res *Result) {
	res = &Result{ValidationIssues: flattenValidation(validation)}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("parse panic: %v\n%s", r, debug.Stack())
			issues := res.ValidationIssues
			*res = *p.fallback(fmt.Sprintf("parse failed: %v", r))
			res.ValidationIssues = issues
		}
	}()

	var scenarios []File
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".xosc":
			scenarios = append(scenarios, f)
		case ".xodr":
			roads, warnings, err := convertRoads(f.Name, f.Data)
			if err != nil {
				res.Warnings = append(res.Warnings, err.Error())
				continue
			}
			res.Roads = append(res.Roads, roads...)
			res.Warnings = append(res.Warnings, warnings...)
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: unsupported file type, ignored", f.Name))
		}
	}
	if len(scenarios) > 1 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d scenario files given, only %s is used", len(scenarios), scenarios[0].Name))
	}

	if len(scenarios) == 0 {
		p.useFallback(res, "no OpenSCENARIO file")
	} else if err := p.parseScenario(scenarios[0], res); err != nil {
		p.useFallback(res, err.Error())
	}
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	return res
}

// parseScenario 解析OpenSCENARIO文档并写入res
func (p *Parser) parseScenario(f File, res *Result) error {
	doc, err := decodeXOSC(f.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	c := newConverter(f.Name, doc, p.cfg)
	vehicles, duration, err := c.convert(doc)
	res.Warnings = append(res.Warnings, c.warnings...)
	if err != nil {
		return err
	}
	res.Vehicles = vehicles
	res.Timeline = c.timeline()
	res.Scenario = ScenarioInfo{
		Name:        strings.TrimSuffix(filepath.Base(f.Name), filepath.Ext(f.Name)),
		Author:      doc.FileHeader.Author,
		Description: doc.FileHeader.Description,
		Date:        doc.FileHeader.Date,
		Duration:    duration,
	}
	if doc.RoadNetwork != nil && doc.RoadNetwork.LogicFile != nil {
		res.Scenario.RoadNetwork = doc.RoadNetwork.LogicFile.Filepath
	}
	return nil
}

func (p *Parser) useFallback(res *Result, reason string) {
	fb := p.fallback(reason)
	res.Vehicles = fb.Vehicles
	res.Timeline = fb.Timeline
	res.Scenario = fb.Scenario
	res.Warnings = append(res.Warnings, fb.Warnings...)
}

// fallback 兜底场景：一辆沿x轴匀速行驶的默认车辆，空时间线
func (p *Parser) fallback(reason string) *Result {
	d := p.cfg.DefaultDuration
	return &Result{
		Vehicles: []*entity.VehicleTrajectoryData{{
			ID:   DefaultVehicleID,
			Name: DefaultVehicleID,
			Type: "car",
			Trajectory: []entity.TrajectoryPoint{
				{Time: 0, Position: r3.Vector{}, Velocity: lo.ToPtr(p.cfg.DefaultSpeed)},
				{Time: d, Position: r3.Vector{X: p.cfg.DefaultSpeed * d}, Velocity: lo.ToPtr(p.cfg.DefaultSpeed)},
			},
			StartTime:    0,
			EndTime:      d,
			InitialSpeed: p.cfg.DefaultSpeed,
		}},
		Timeline: []*entity.ScenarioEvent{},
		Scenario: ScenarioInfo{Name: "fallback", Duration: d, Fallback: true},
		Warnings: []string{"using fallback scenario: " + reason},
	}
}

// flattenValidation 展平校验结论，按文件名排序，同一文件先error后warning
func flattenValidation(validation map[string]ValidationResult) []ValidationIssue {
	names := lo.Keys(validation)
	sort.Strings(names)
	var issues []ValidationIssue
	for _, name := range names {
		v := validation[name]
		for _, msg := range v.Errors {
			issues = append(issues, ValidationIssue{File: name, Severity: "error", Message: msg})
		}
		for _, msg := range v.Warnings {
			issues = append(issues, ValidationIssue{File: name, Severity: "warning", Message: msg})
		}
	}
	return issues
}
