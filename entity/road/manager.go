package road

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
)

// DefaultLaneWidth 没有道路数据时的车道宽度（米）
const DefaultLaneWidth = 3.5

// RoadManager Road管理器
// 功能：管理OpenDRIVE解析出的道路摘要，提供查找、输出与车道宽度查询
type RoadManager struct {
	data  map[string]*entity.Road
	roads []*entity.Road

	meanLaneWidth float64
}

// NewManager 创建Road管理器实例
func NewManager() *RoadManager {
	return &RoadManager{
		data:          make(map[string]*entity.Road),
		roads:         make([]*entity.Road, 0),
		meanLaneWidth: DefaultLaneWidth,
	}
}

// Init 初始化所有Road
// 功能：建立ID映射，按ID排序，计算行车道平均宽度
// 参数：roads-道路摘要列表，ID重复时保留后出现的道路
func (m *RoadManager) Init(roads []*entity.Road) {
	m.data = lo.SliceToMap(roads, func(r *entity.Road) (string, *entity.Road) {
		return r.ID, r
	})
	if len(m.data) != len(roads) {
		log.Warnf("%d duplicated road ids ignored", len(roads)-len(m.data))
	}
	m.roads = lo.Values(m.data)
	sort.Slice(m.roads, func(i, j int) bool { return m.roads[i].ID < m.roads[j].ID })

	// 按车道数加权的平均车道宽度
	var width float64
	var lanes int
	for _, r := range m.roads {
		if r.LaneCount > 0 && r.LaneWidth > 0 {
			width += r.LaneWidth * float64(r.LaneCount)
			lanes += r.LaneCount
		}
	}
	m.meanLaneWidth = DefaultLaneWidth
	if lanes > 0 {
		m.meanLaneWidth = width / float64(lanes)
	}
	log.Infof("init %d roads, mean lane width %.2fm", len(m.roads), m.meanLaneWidth)
}

// Get 根据ID获取Road，如果不存在则panic
func (m *RoadManager) Get(id string) *entity.Road {
	if road, ok := m.data[id]; !ok {
		log.Panicf("no id %s in road data", id)
		return nil
	} else {
		return road
	}
}

// GetOrError 根据ID获取Road，如果不存在则返回错误
func (m *RoadManager) GetOrError(id string) (*entity.Road, error) {
	if road, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %s in road data", id)
	} else {
		return road, nil
	}
}

// Roads 所有道路（按ID排序）
func (m *RoadManager) Roads() []*entity.Road {
	return m.roads
}

// MeanLaneWidth 行车道平均宽度，没有道路数据时为DefaultLaneWidth
func (m *RoadManager) MeanLaneWidth() float64 {
	return m.meanLaneWidth
}
