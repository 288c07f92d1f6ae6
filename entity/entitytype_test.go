package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-player/entity"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestEventCloneIsDeep(t *testing.T) {
	params, err := structpb.NewStruct(map[string]any{
		"speed":    5.0,
		"position": map[string]any{"x": 1.0, "y": 2.0},
	})
	require.NoError(t, err)
	e := &entity.ScenarioEvent{ID: "slow@ego", Time: 1, Parameters: params}

	c := e.Clone()
	c.Time = 2
	c.Parameters.Fields["speed"] = structpb.NewNumberValue(9)
	c.Parameters.Fields["position"].GetStructValue().Fields["x"] = structpb.NewNumberValue(100)

	assert.Equal(t, 1.0, e.Time)
	speed, ok := e.NumberParam("speed")
	assert.True(t, ok)
	assert.Equal(t, 5.0, speed)
	assert.Equal(t, 1.0, e.Parameters.Fields["position"].GetStructValue().Fields["x"].GetNumberValue())

	assert.Nil(t, (&entity.ScenarioEvent{ID: "x"}).Clone().Parameters)
}
