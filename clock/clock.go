package clock

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// Status 时间轴状态
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

// 回放倍速范围
const (
	MinSpeed = 0.1
	MaxSpeed = 4.0
)

// Clock 仿真时钟（时间轴状态）
// 功能：一次回放会话中“现在是几点”的唯一来源
// 说明：只由task.Context在帧循环与文档化的控制方法中修改，外部只读取Snapshot
type Clock struct {
	T         float64 // 当前仿真时间（秒）
	Duration  float64 // 场景总时长（秒）
	Speed     float64 // 回放倍速
	Status    Status
	Loop      bool    // 到达末尾后是否回到0继续
	FrameRate float64 // 最近若干帧的平均帧率
	Frame     int64   // 已执行的帧数
}

// New 创建时钟
// 参数：duration-场景时长，speed-初始倍速（会被限制到合法范围）
func New(duration, speed float64) *Clock {
	c := &Clock{
		Duration: lo.Max([]float64{duration, 0}),
	}
	c.SetSpeed(speed)
	c.Init()
	return c
}

// Init 重置到时间0并停止
func (c *Clock) Init() {
	c.T = 0
	c.Status = StatusIdle
	c.Frame = 0
}

// Playing 是否正在播放
func (c *Clock) Playing() bool {
	return c.Status == StatusPlaying
}

// ClampTime 将时间限制在[0, Duration]内
func (c *Clock) ClampTime(t float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	return lo.Clamp(t, 0, c.Duration)
}

// SetSpeed 设置倍速，超出[0.1, 4]的值被截断而不是拒绝
func (c *Clock) SetSpeed(s float64) {
	if math.IsNaN(s) {
		s = 1
	}
	c.Speed = lo.Clamp(s, MinSpeed, MaxSpeed)
}

// Advance 推进仿真时间
// 功能：按墙钟间隔与倍速推进，处理到达末尾的停止或循环
// 参数：wallDelta-已截断的墙钟间隔（秒）
// 返回：wrapped-是否发生循环回绕，ended-是否在本次推进中到达末尾并停止
func (c *Clock) Advance(wallDelta float64) (wrapped, ended bool) {
	if !c.Playing() || wallDelta <= 0 {
		return false, false
	}
	c.T += wallDelta * c.Speed
	if c.T >= c.Duration {
		if c.Loop && c.Duration > 0 {
			c.T = 0
			return true, false
		}
		c.T = c.Duration
		c.Status = StatusEnded
		return false, true
	}
	return false, false
}

// Snapshot 时间轴状态的只读快照
type Snapshot struct {
	CurrentTime   float64 `json:"currentTime"`
	Duration      float64 `json:"duration"`
	IsPlaying     bool    `json:"isPlaying"`
	PlaybackSpeed float64 `json:"playbackSpeed"`
	FrameRate     float64 `json:"frameRate"`
	Status        Status  `json:"status"`
	Loop          bool    `json:"loop"`
}

// Snapshot 生成快照
func (c *Clock) Snapshot() Snapshot {
	return Snapshot{
		CurrentTime:   c.T,
		Duration:      c.Duration,
		IsPlaying:     c.Playing(),
		PlaybackSpeed: c.Speed,
		FrameRate:     c.FrameRate,
		Status:        c.Status,
		Loop:          c.Loop,
	}
}

// String 获取时钟的字符串表示（MM:SS.mmm / MM:SS.mmm）
func (c *Clock) String() string {
	return fmt.Sprintf("%s / %s", formatTime(c.T), formatTime(c.Duration))
}

// GetMinuteSecond 获取当前时间的分钟、秒
func (c *Clock) GetMinuteSecond() (int, float64) {
	minute := int(c.T) / 60
	return minute, c.T - float64(minute*60)
}

func formatTime(t float64) string {
	m := int(t) / 60
	return fmt.Sprintf("%02d:%06.3f", m, t-float64(m*60))
}
