package task

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/entity/vehicle"
	"github.com/tsinghua-fib-lab/scenario-player/utils"
	"google.golang.org/protobuf/types/known/structpb"
)

// PlaybackServiceName 回放控制服务名
const PlaybackServiceName = "scenario.v1.PlaybackService"

// Procedure 回放控制服务中方法的完整路径
func Procedure(method string) string {
	return "/" + PlaybackServiceName + "/" + method
}

// WaitForServerReady 等待服务器就绪
// 功能：通过HTTP请求检查服务器是否已经启动并可以响应
// 参数：addr-服务器地址，retryCount-重试次数，interval-重试间隔
// 返回：错误信息，如果服务器就绪则返回nil
func WaitForServerReady(addr string, retryCount int, interval time.Duration) error {
	client := &http.Client{
		Timeout: interval,
	}
	for range retryCount {
		resp, err := client.Get(addr)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("server `%v` did not become ready after %d retries", addr, retryCount)
}

// Register 将PlaybackService注册到sidecar
// 说明：回放由帧循环驱动而不是由syncer的步进驱动，处理器不需要持有步进锁
func (ctx *Context) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(PlaybackServiceName, ctx.NewHandler, syncer.WithNoLock())
}

// NewHandler 创建PlaybackService的HTTP处理器
// 功能：每个方法是一个connect一元调用，请求与响应都是google.protobuf.Struct
// 返回：路由前缀，处理器
// 说明：
// 1. 控制方法（Play/Pause/Toggle/Reset/Seek/SetSpeed/SetLoop/SetCameraDistance）返回操作后的时间轴状态
// 2. 查询方法（GetState/GetFrame/GetEvents/GetStatistics/GetRoads/GetScenario/GetProfile）只读
// 3. 参数缺失或类型错误返回InvalidArgument
func (ctx *Context) NewHandler(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
	mux := http.NewServeMux()
	handle := func(method string, f func(in *structpb.Struct) (any, error)) {
		procedure := Procedure(method)
		mux.Handle(procedure, connect.NewUnaryHandler(
			procedure,
			func(_ context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
				res, err := f(req.Msg)
				if err != nil {
					return nil, err
				}
				out, err := toStruct(res)
				if err != nil {
					log.Errorf("%s: encode response: %v", method, err)
					return nil, connect.NewError(connect.CodeInternal, err)
				}
				return connect.NewResponse(out), nil
			},
			opts...,
		))
	}

	control := func(method string, f func(in *structpb.Struct) error) {
		handle(method, func(in *structpb.Struct) (any, error) {
			if err := f(in); err != nil {
				return nil, err
			}
			return ctx.State(), nil
		})
	}
	control("Play", func(*structpb.Struct) error { ctx.Play(); return nil })
	control("Pause", func(*structpb.Struct) error { ctx.Pause(); return nil })
	control("Toggle", func(*structpb.Struct) error { ctx.Toggle(); return nil })
	control("Reset", func(*structpb.Struct) error { ctx.Reset(); return nil })
	control("Seek", func(in *structpb.Struct) error {
		t, err := number(in, "time")
		if err != nil {
			return err
		}
		ctx.SeekTo(t)
		return nil
	})
	control("SetSpeed", func(in *structpb.Struct) error {
		s, err := number(in, "speed")
		if err != nil {
			return err
		}
		ctx.SetPlaybackSpeed(s)
		return nil
	})
	control("SetLoop", func(in *structpb.Struct) error {
		v, ok := in.GetFields()["loop"]
		if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !ok || !isBool {
			return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("loop: bool required"))
		}
		ctx.SetLoop(v.GetBoolValue())
		return nil
	})
	control("SetCameraDistance", func(in *structpb.Struct) error {
		d, err := number(in, "distance")
		if err != nil {
			return err
		}
		if d < 0 {
			return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("distance: must not be negative"))
		}
		ctx.SetCameraDistance(d)
		return nil
	})

	handle("GetState", func(*structpb.Struct) (any, error) { return ctx.State(), nil })
	handle("GetFrame", func(in *structpb.Struct) (any, error) {
		return filterFrame(ctx.Frame(), stringList(in, "vehicleIds")), nil
	})
	handle("GetEvents", func(*structpb.Struct) (any, error) {
		return map[string]any{"events": ctx.Events()}, nil
	})
	handle("GetStatistics", func(*structpb.Struct) (any, error) { return ctx.Statistics(), nil })
	handle("GetRoads", func(in *structpb.Struct) (any, error) {
		step := 1.0
		if _, ok := in.GetFields()["step"]; ok {
			s, err := number(in, "step")
			if err != nil {
				return nil, err
			}
			step = s
		}
		return map[string]any{"roads": ctx.Roads(step)}, nil
	})
	handle("GetScenario", func(*structpb.Struct) (any, error) { return ctx.Scenario(), nil })
	handle("GetProfile", func(*structpb.Struct) (any, error) { return ctx.Profile(), nil })

	return "/" + PlaybackServiceName + "/", mux
}

// frameResponse GetFrame的响应
type frameResponse struct {
	Frame
	MissingIDs []string `json:"missingIds,omitempty"`
}

// filterFrame 只保留指定车辆的位姿与渲染数据，ids为空时返回整帧
func filterFrame(f Frame, ids []string) frameResponse {
	if len(ids) == 0 {
		return frameResponse{Frame: f}
	}
	transforms, failed := utils.Find(
		lo.KeyBy(f.Transforms, func(t vehicle.Transform) string { return t.VehicleID }),
		f.Transforms, ids,
	)
	// 不可见车辆没有渲染数据，不算作缺失
	vehicles, _ := utils.Find(
		lo.KeyBy(f.Vehicles, func(v vehicle.VehicleElement) string { return v.ID }),
		f.Vehicles, ids,
	)
	f.Transforms = transforms
	f.Vehicles = vehicles
	return frameResponse{Frame: f, MissingIDs: failed}
}

// toStruct 将响应对象按JSON字段名转换为Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func number(in *structpb.Struct, key string) (float64, error) {
	v, ok := in.GetFields()[key]
	if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); !ok || !isNumber {
		return 0, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s: number required", key))
	}
	return v.GetNumberValue(), nil
}

func stringList(in *structpb.Struct, key string) []string {
	list := in.GetFields()[key].GetListValue().GetValues()
	return lo.FilterMap(list, func(v *structpb.Value, _ int) (string, bool) {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", false
		}
		return s.StringValue, true
	})
}
