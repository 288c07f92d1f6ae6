package config

// InputPath 指定MongoDB中场景文档集合的配置
// 功能：定义场景原始文档在MongoDB中的位置
// 说明：集合中每条记录形如{name, content}，name带扩展名（.xosc/.xodr）
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存子目录名，缺省为{db}.{col}
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存子目录名
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col
}

// Input 指定场景输入数据的配置项
// 功能：定义场景文件、道路文件与校验结果的来源
// 说明：Files非空时优先从文件系统读取，否则从MongoDB读取
type Input struct {
	Files      []string   `yaml:"files,omitempty"`      // 场景文件路径列表（.xosc/.xodr）
	URI        string     `yaml:"uri,omitempty"`        // MongoDB连接字符串
	Scenario   *InputPath `yaml:"scenario,omitempty"`   // MongoDB中的场景集合
	Validation string     `yaml:"validation,omitempty"` // 校验结果文件（JSON/YAML），{filename: {errors, warnings}}
}

// Playback 回放控制配置
// 功能：定义时间轴控制器的初始参数
type Playback struct {
	Speed             float64 `yaml:"speed"`               // 初始回放倍速，范围[0.1, 4]
	Loop              bool    `yaml:"loop,omitempty"`      // 到达末尾后是否循环
	Autoplay          bool    `yaml:"autoplay,omitempty"`  // 加载完成后是否自动播放
	MaxFrameDelta     float64 `yaml:"max_frame_delta"`     // 单帧墙钟间隔上限（秒）
	FrameInterval     float64 `yaml:"frame_interval"`      // 帧间隔（秒）
	FrameRateWindow   int     `yaml:"frame_rate_window"`   // 帧率滑动平均窗口（帧）
	HeartbeatInterval int     `yaml:"heartbeat_interval"`  // 心跳日志间隔（帧）
	CameraDistance    float64 `yaml:"camera_distance"`     // 初始相机到场景中心的距离（米）
}

// Control 模拟器控制配置
type Control struct {
	Playback Playback `yaml:"playback"`
}

// LOD 细节层次调节配置
// 功能：定义距离阈值、负载阈值与迟滞参数
// 说明：距离阈值必须单调递增
type LOD struct {
	HighDistance       float64 `yaml:"high_distance"`       // 不超过该距离为high
	MediumDistance     float64 `yaml:"medium_distance"`     // 不超过该距离为medium，否则low
	LowFPS             float64 `yaml:"low_fps"`             // 低于该帧率强制low
	MediumFPS          float64 `yaml:"medium_fps"`          // 低于该帧率强制medium
	LowVehicles        int     `yaml:"low_vehicles"`        // 车辆数超过该值强制low
	MediumVehicles     int     `yaml:"medium_vehicles"`     // 车辆数超过该值强制medium
	InstancingVehicles int     `yaml:"instancing_vehicles"` // 车辆数超过该值启用实例化
	InstancingFPS      float64 `yaml:"instancing_fps"`      // 帧率低于该值启用实例化
	RecoveryFrames     int     `yaml:"recovery_frames"`     // 提升一档所需的连续良好帧数
	DipFrames          int     `yaml:"dip_frames"`          // 仅由帧率引起的降档所需连续帧数
}

// Parser 场景解析配置
type Parser struct {
	Timeout         float64 `yaml:"timeout"`          // 单次解析超时（秒）
	MaxInputBytes   int64   `yaml:"max_input_bytes"`  // 单次解析输入总字节上限
	DefaultDuration float64 `yaml:"default_duration"` // 无法推断时的场景时长（秒）
	DefaultSpeed    float64 `yaml:"default_speed"`    // vehicle_start缺省目标速度（米/秒）
	SampleInterval  float64 `yaml:"sample_interval"`  // 合成轨迹的采样间隔（秒）
	MaxSamples      int     `yaml:"max_samples"`      // 单条合成轨迹的采样点上限
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`   // 输入
	Control Control `yaml:"control"` // 回放控制
	LOD     LOD     `yaml:"lod"`     // 细节层次
	Parser  Parser  `yaml:"parser"`  // 解析
}
