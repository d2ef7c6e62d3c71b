package reduce

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCurve(id string) *Curve {
	edges, _ := NewBinEdges([]float64{0.01, 0.02, 0.03, 0.04})
	return &Curve{
		RunID:    id,
		QEdges:   edges,
		R:        []float64{0.9, 0.4, math.NaN()},
		Variance: []float64{0.001, 0.002, math.NaN()},
		Counts:   []int{50, 20, 0},
	}
}

func TestPublishCurve(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	publisher := NewPublisher(client, "test")

	err := publisher.PublishCurve(testCurve("sam-662"))
	require.NoError(t, err)

	messages := client.GetPublishedMessages()
	require.Len(t, messages, 2)

	// Individual topic first, then the combined topic.
	assert.Equal(t, "test/sam-662", messages[0].Topic)
	assert.Equal(t, "test/curves", messages[1].Topic)
	assert.True(t, messages[0].Retain)

	var msg CurveMessage
	require.NoError(t, json.Unmarshal(messages[0].Payload, &msg))
	assert.Equal(t, "sam-662", msg.RunID)
	require.Len(t, msg.Q, 3)
	assert.InDelta(t, 0.015, msg.Q[0], 1e-12)
	require.NotNil(t, msg.R[0])
	assert.InDelta(t, 0.9, *msg.R[0], 1e-12)
	// The undefined bin travels as null.
	assert.Nil(t, msg.R[2])
	assert.Nil(t, msg.Variance[2])
	assert.Equal(t, []int{50, 20, 0}, msg.Counts)
}

func TestPublishCurve_CombinedHoldsAllRuns(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	publisher := NewPublisher(client, "test")

	require.NoError(t, publisher.PublishCurve(testCurve("sam-1")))
	require.NoError(t, publisher.PublishCurve(testCurve("sam-2")))

	messages := client.GetPublishedMessages()
	require.Len(t, messages, 4)

	var combined struct {
		Curves    []CurveMessage `json:"curves"`
		Timestamp int64          `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(messages[3].Payload, &combined))
	assert.Len(t, combined.Curves, 2)

	ids := map[string]bool{}
	for _, c := range combined.Curves {
		ids[c.RunID] = true
	}
	assert.True(t, ids["sam-1"])
	assert.True(t, ids["sam-2"])
}

func TestPublishCurve_NotConnected(t *testing.T) {
	client := NewMockClient()
	publisher := NewPublisher(client, "test")

	err := publisher.PublishCurve(testCurve("sam-662"))
	assert.Error(t, err)
	assert.Empty(t, client.GetPublishedMessages())
}

func TestPublishCurve_NilClient(t *testing.T) {
	publisher := NewPublisher(nil, "test")
	assert.Error(t, publisher.PublishCurve(testCurve("sam-662")))
}

func TestPublishCurve_PublishError(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	client.SetPublishError(assert.AnError)
	publisher := NewPublisher(client, "test")

	assert.Error(t, publisher.PublishCurve(testCurve("sam-662")))
}

func TestNewPublisher_PrefixFromEnv(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "override")
	client := NewMockClient()
	client.SetConnected(true)
	publisher := NewPublisher(client, "ignored")

	require.NoError(t, publisher.PublishCurve(testCurve("sam-662")))
	messages := client.GetPublishedMessages()
	require.NotEmpty(t, messages)
	assert.Equal(t, "override/sam-662", messages[0].Topic)
}
