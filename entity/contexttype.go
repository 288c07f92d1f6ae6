package entity

import (
	"github.com/tsinghua-fib-lab/scenario-player/clock"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	RoadManager() IRoadManager
	VehicleManager() IVehicleManager
	RuntimeConfig() *config.Config
}
