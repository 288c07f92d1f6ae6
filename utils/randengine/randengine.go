// 随机数引擎，包装了golang.org/x/exp/rand，用于生成可复现的合成场景
package randengine

import (
	"flag"
	"fmt"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎
// 功能：为合成场景提供可复现的随机数，相同种子产生相同场景
// 说明：不是线程安全的，每个生成过程独占一个引擎
type Engine struct {
	*rand.Rand
}

// New 创建随机数引擎
// 参数：seed-随机数种子（会叠加命令行的种子偏移量）
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// Uniform 生成[lo, hi)内均匀分布的浮点数
func (e *Engine) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*e.Float64()
}

// PTrue 以概率p返回true
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// DiscreteDistribution 按给定权重生成随机索引
// 参数：weight-权重数组，元素非负且至少有一个为正
// 返回：[0, len(weight))内的索引
// 算法说明：在[0, 总权重)上取随机数，返回累积权重首次超过它的索引
func (e *Engine) DiscreteDistribution(weight []float64) int {
	total := 0.
	for _, w := range weight {
		total += w
	}
	random := total * e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return i
		}
	}
	panic(fmt.Sprintf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random))
}
