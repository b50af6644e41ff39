package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "shepherd/pkg/domain"
)

func TestClassify_ChildStatusUpdate(t *testing.T) {
	raw := []byte(`{
		"type": "child_status_update",
		"timestamp": "2026-03-01T09:30:00Z",
		"serviceId": "svc-1",
		"previousStatus": "NOT_IN_SERVICE",
		"newStatus": "CHECKED_IN",
		"child": {"id": "child-1", "firstName": "Noah", "status": "CHECKED_IN"}
	}`)

	msg := Classify(raw)

	assert.Equal(t, TypeChildStatusUpdate, msg.Type)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), msg.Timestamp)
	assert.Equal(t, id.StatusNotInService, msg.PreviousStatus)
	assert.Equal(t, id.StatusCheckedIn, msg.NewStatus)
	assert.Equal(t, id.ServiceID("svc-1"), msg.ServiceID)
	require.NotNil(t, msg.Child)
	assert.Equal(t, id.ChildID("child-1"), msg.Child.ID)
}

func TestClassify_ServiceCapacityUpdate(t *testing.T) {
	raw := []byte(`{
		"type": "service_capacity_update",
		"timestamp": "2026-03-01T09:31:00Z",
		"previousCapacity": 3,
		"newCapacity": 4,
		"service": {"id": "svc-1", "name": "Sprouts", "maxCapacity": 10, "currentCapacity": 4}
	}`)

	msg := Classify(raw)

	assert.Equal(t, TypeServiceCapacityUpdate, msg.Type)
	assert.Equal(t, 3, msg.PreviousCapacity)
	assert.Equal(t, 4, msg.NewCapacity)
	require.NotNil(t, msg.Service)
	assert.Equal(t, 4, msg.Service.CurrentCapacity)
}

func TestClassify_ControlVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want MessageType
	}{
		{"connection established", `{"type":"connection_established","timestamp":"2026-03-01T09:30:00Z","sessionId":"sess-9"}`, TypeConnectionEstablished},
		{"heartbeat", `{"type":"heartbeat","timestamp":"2026-03-01T09:30:00Z"}`, TypeHeartbeat},
		{"heartbeat response", `{"type":"heartbeat_response","timestamp":"2026-03-01T09:30:00Z"}`, TypeHeartbeatResponse},
		{"error", `{"type":"error","timestamp":"2026-03-01T09:30:00Z","message":"boom","code":"SERVER_ERROR"}`, TypeError},
		{"check in update", `{"type":"check_in_update","timestamp":"2026-03-01T09:30:00Z","record":{"id":"rec-1"}}`, TypeCheckInUpdate},
		{"check out update", `{"type":"check_out_update","timestamp":"2026-03-01T09:30:00Z","record":{"id":"rec-1"}}`, TypeCheckOutUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]byte(tt.raw)).Type)
		})
	}
}

func TestClassify_ErrorFields(t *testing.T) {
	msg := Classify([]byte(`{"type":"error","timestamp":"2026-03-01T09:30:00Z","message":"service full","code":"SERVICE_AT_CAPACITY","details":{"serviceId":"svc-1"}}`))

	assert.Equal(t, "service full", msg.ErrorMessage)
	assert.Equal(t, "SERVICE_AT_CAPACITY", msg.ErrorCode)
	assert.Equal(t, "svc-1", msg.ErrorDetails["serviceId"])
}

// Unrecognized discriminators degrade to unknown and keep the raw payload.
func TestClassify_UnknownKeepsRawPayload(t *testing.T) {
	raw := []byte(`{"type":"volunteer_roster_update","timestamp":"2026-03-01T09:30:00Z","roster":["a","b"]}`)

	msg := Classify(raw)

	assert.Equal(t, TypeUnknown, msg.Type)
	assert.JSONEq(t, string(raw), string(msg.Raw))
}

func TestClassify_MalformedPayload(t *testing.T) {
	raw := []byte(`{"type": "child_status_up`)

	msg := Classify(raw)

	assert.Equal(t, TypeUnknown, msg.Type)
	assert.Equal(t, raw, []byte(msg.Raw))
	assert.False(t, msg.Timestamp.IsZero())
}

func TestEncodeControl(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	raw, err := encodeControl(TypeSubscribeChild, "child-1", "", at)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "subscribe_child", wire["type"])
	assert.Equal(t, "child-1", wire["childId"])
	assert.NotContains(t, wire, "serviceId")
}
