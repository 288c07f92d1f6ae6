package parser

import "github.com/tsinghua-fib-lab/scenario-player/utils/config"

// NewWorkerWithParse 使用自定义解析函数创建worker
func NewWorkerWithParse(cfg config.Parser, parse func([]File, map[string]ValidationResult) *Result) *Worker {
	c := config.Config{Parser: cfg}
	c.FillDefaults()
	return newWorker(c.Parser, parse)
}
