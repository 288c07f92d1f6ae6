package parser

import (
	"errors"

	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

var (
	ErrInputTooLarge    = errors.New("parser: input too large")
	ErrParseTimeout     = errors.New("parser: parse timeout")
	ErrWorkerCrashed    = errors.New("parser: worker crashed")
	ErrWorkerTerminated = errors.New("parser: worker terminated")
)

// File 原始场景文档
type File struct {
	Name string // 文件名，按扩展名（.xosc/.xodr）区分类型
	Data []byte
}

// ValidationResult 外部校验服务对单个文件的结论，原样透传
type ValidationResult struct {
	Errors   []string `yaml:"errors" json:"errors"`
	Warnings []string `yaml:"warnings" json:"warnings"`
}

// ValidationIssue 展平后的校验问题
type ValidationIssue struct {
	File     string `json:"file"`
	Severity string `json:"severity"` // error|warning
	Message  string `json:"message"`
}

// ScenarioInfo 场景元数据（FileHeader）
type ScenarioInfo struct {
	Name        string  `json:"name"`
	Author      string  `json:"author,omitempty"`
	Description string  `json:"description,omitempty"`
	Date        string  `json:"date,omitempty"`
	RoadNetwork string  `json:"roadNetwork,omitempty"` // LogicFile路径
	Duration    float64 `json:"duration"`              // 场景时长（秒）
	Fallback    bool    `json:"fallback"`              // 是否为无法解析时的兜底场景
}

// Result 一次解析的结果
// 说明：交给调用方后视为不可变快照
type Result struct {
	Vehicles         []*entity.VehicleTrajectoryData
	Timeline         []*entity.ScenarioEvent // 所有车辆的事件，按时间排序
	Roads            []*entity.Road
	Scenario         ScenarioInfo
	ValidationIssues []ValidationIssue
	Warnings         []string
}
