package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// 默认配置
const (
	DefaultSpeed             = 1.0
	DefaultMaxFrameDelta     = 0.05
	DefaultFrameInterval     = 1.0 / 60
	DefaultFrameRateWindow   = 60
	DefaultHeartbeatInterval = 600
	DefaultCameraDistance    = 50

	MinPlaybackSpeed = 0.1
	MaxPlaybackSpeed = 4.0
)

// Default 返回全部字段取默认值的配置
func Default() Config {
	var c Config
	c.FillDefaults()
	return c
}

// Load 解析YAML配置
// 功能：严格模式解析YAML数据并补全默认值，检查LOD阈值的单调性
// 参数：data-YAML数据
// 返回：配置对象，错误信息
func Load(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	c.FillDefaults()
	if err := c.LOD.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// FillDefaults 补全未配置（零值）的字段
func (c *Config) FillDefaults() {
	p := &c.Control.Playback
	if p.Speed == 0 {
		p.Speed = DefaultSpeed
	}
	if p.MaxFrameDelta <= 0 {
		p.MaxFrameDelta = DefaultMaxFrameDelta
	}
	if p.FrameInterval <= 0 {
		p.FrameInterval = DefaultFrameInterval
	}
	if p.FrameRateWindow <= 0 {
		p.FrameRateWindow = DefaultFrameRateWindow
	}
	if p.HeartbeatInterval <= 0 {
		p.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if p.CameraDistance <= 0 {
		p.CameraDistance = DefaultCameraDistance
	}

	l := &c.LOD
	if l.HighDistance <= 0 {
		l.HighDistance = 25
	}
	if l.MediumDistance <= 0 {
		l.MediumDistance = 75
	}
	if l.LowFPS <= 0 {
		l.LowFPS = 30
	}
	if l.MediumFPS <= 0 {
		l.MediumFPS = 45
	}
	if l.LowVehicles <= 0 {
		l.LowVehicles = 100
	}
	if l.MediumVehicles <= 0 {
		l.MediumVehicles = 50
	}
	if l.InstancingVehicles <= 0 {
		l.InstancingVehicles = 200
	}
	if l.InstancingFPS <= 0 {
		l.InstancingFPS = 25
	}
	if l.RecoveryFrames <= 0 {
		l.RecoveryFrames = 60
	}
	if l.DipFrames <= 0 {
		l.DipFrames = 3
	}

	ps := &c.Parser
	if ps.Timeout <= 0 {
		ps.Timeout = 10
	}
	if ps.MaxInputBytes <= 0 {
		ps.MaxInputBytes = 64 << 20
	}
	if ps.DefaultDuration <= 0 {
		ps.DefaultDuration = 10
	}
	if ps.DefaultSpeed <= 0 {
		ps.DefaultSpeed = 10
	}
	if ps.SampleInterval <= 0 {
		ps.SampleInterval = 0.5
	}
	if ps.MaxSamples <= 0 {
		ps.MaxSamples = 10000
	}
}

// Validate 检查LOD阈值
// 说明：距离阈值与负载阈值都必须单调，否则档位选择会出现倒挂
func (l LOD) Validate() error {
	if l.HighDistance > l.MediumDistance {
		return fmt.Errorf("config: lod.high_distance %v > lod.medium_distance %v", l.HighDistance, l.MediumDistance)
	}
	if l.LowFPS > l.MediumFPS {
		return fmt.Errorf("config: lod.low_fps %v > lod.medium_fps %v", l.LowFPS, l.MediumFPS)
	}
	if l.MediumVehicles > l.LowVehicles {
		return fmt.Errorf("config: lod.medium_vehicles %d > lod.low_vehicles %d", l.MediumVehicles, l.LowVehicles)
	}
	return nil
}
