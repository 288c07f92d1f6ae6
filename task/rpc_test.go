package task_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"github.com/tsinghua-fib-lab/scenario-player/task"
	"google.golang.org/protobuf/types/known/structpb"
)

func call(t *testing.T, srv *httptest.Server, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	client := connect.NewClient[structpb.Struct, structpb.Struct](srv.Client(), srv.URL+task.Procedure(method))
	msg, err := structpb.NewStruct(in)
	require.NoError(t, err)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestPlaybackService(t *testing.T) {
	h := newHarness(t, scene(10))
	_, handler := h.ctx.NewHandler()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	out, err := call(t, srv, "Seek", map[string]any{"time": 2.5})
	require.NoError(t, err)
	assert.Equal(t, 2.5, out.Fields["currentTime"].GetNumberValue())
	assert.Equal(t, "idle", out.Fields["status"].GetStringValue())

	out, err = call(t, srv, "SetSpeed", map[string]any{"speed": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out.Fields["playbackSpeed"].GetNumberValue())

	out, err = call(t, srv, "Play", nil)
	require.NoError(t, err)
	assert.True(t, out.Fields["isPlaying"].GetBoolValue())

	out, err = call(t, srv, "Toggle", nil)
	require.NoError(t, err)
	assert.Equal(t, "paused", out.Fields["status"].GetStringValue())

	out, err = call(t, srv, "SetLoop", map[string]any{"loop": true})
	require.NoError(t, err)
	assert.True(t, out.Fields["loop"].GetBoolValue())

	out, err = call(t, srv, "GetEvents", nil)
	require.NoError(t, err)
	events := out.Fields["events"].GetListValue().GetValues()
	require.Len(t, events, 2)
	first := events[0].GetStructValue()
	assert.Equal(t, 0.05, first.Fields["timelinePosition"].GetNumberValue())
	params := first.Fields["event"].GetStructValue().Fields["parameters"].GetStructValue()
	assert.Equal(t, 5.0, params.Fields["speed"].GetNumberValue())

	out, err = call(t, srv, "GetStatistics", nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.Fields["total"].GetNumberValue())

	out, err = call(t, srv, "GetScenario", nil)
	require.NoError(t, err)
	assert.Equal(t, "test", out.Fields["name"].GetStringValue())

	out, err = call(t, srv, "Reset", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Fields["currentTime"].GetNumberValue())
}

func TestPlaybackServiceFrame(t *testing.T) {
	h := newHarness(t, scene(10))
	_, handler := h.ctx.NewHandler()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	out, err := call(t, srv, "GetFrame", nil)
	require.NoError(t, err)
	assert.Len(t, out.Fields["transforms"].GetListValue().GetValues(), 1)
	assert.NotContains(t, out.Fields, "missingIds")

	out, err = call(t, srv, "GetFrame", map[string]any{"vehicleIds": []any{"ego", "ghost"}})
	require.NoError(t, err)
	transforms := out.Fields["transforms"].GetListValue().GetValues()
	require.Len(t, transforms, 1)
	assert.Equal(t, "ego", transforms[0].GetStructValue().Fields["vehicleId"].GetStringValue())
	missing := out.Fields["missingIds"].GetListValue().GetValues()
	require.Len(t, missing, 1)
	assert.Equal(t, "ghost", missing[0].GetStringValue())

	out, err = call(t, srv, "GetProfile", nil)
	require.NoError(t, err)
	assert.Equal(t, "medium", out.Fields["lodLevel"].GetStringValue())
}

func TestPlaybackServiceInvalidArgument(t *testing.T) {
	h := newHarness(t, scene(10))
	_, handler := h.ctx.NewHandler()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	for method, in := range map[string]map[string]any{
		"Seek":              nil,
		"SetSpeed":          {"speed": "fast"},
		"SetLoop":           {"loop": 1},
		"SetCameraDistance": {"distance": -1},
	} {
		_, err := call(t, srv, method, in)
		require.Error(t, err, method)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err), method)
	}
	assert.Equal(t, 0.0, h.ctx.State().CurrentTime)
}

func TestPlaybackServiceRoads(t *testing.T) {
	data := scene(10)
	data.Roads = []*entity.Road{{
		ID: "1", Length: 10, JunctionID: "-1", LaneCount: 2, LaneWidth: 3.5,
		Geometry: []entity.RoadGeometry{{Length: 10}},
	}}
	h := newHarness(t, data)
	_, handler := h.ctx.NewHandler()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	out, err := call(t, srv, "GetRoads", map[string]any{"step": 5})
	require.NoError(t, err)
	roads := out.Fields["roads"].GetListValue().GetValues()
	require.Len(t, roads, 1)
	r := roads[0].GetStructValue()
	assert.Equal(t, "1", r.Fields["id"].GetStringValue())
	outline := r.Fields["outline"].GetListValue().GetValues()
	require.Len(t, outline, 3)
	assert.Equal(t, 10.0, outline[2].GetStructValue().Fields["X"].GetNumberValue())

	// 缺省步长1米
	out, err = call(t, srv, "GetRoads", nil)
	require.NoError(t, err)
	r = out.Fields["roads"].GetListValue().GetValues()[0].GetStructValue()
	assert.Len(t, r.Fields["outline"].GetListValue().GetValues(), 11)

	_, err = call(t, srv, "GetRoads", map[string]any{"step": "far"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
