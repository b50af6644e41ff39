// Package realtime keeps devices consistent about check-in state: a websocket
// sync channel with reconnect/backoff, a closed set of message variants, and
// last-write-wins reconciliation into the local snapshot cache.
package realtime

import (
	"encoding/json"
	"time"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
)

// MessageType discriminates inbound messages. The set is closed: anything
// unrecognized or unparseable becomes TypeUnknown and keeps its raw payload,
// it is never dropped silently.
type MessageType string

const (
	TypeChildStatusUpdate     MessageType = "child_status_update"
	TypeServiceCapacityUpdate MessageType = "service_capacity_update"
	TypeCheckInUpdate         MessageType = "check_in_update"
	TypeCheckOutUpdate        MessageType = "check_out_update"
	TypeConnectionEstablished MessageType = "connection_established"
	TypeHeartbeat             MessageType = "heartbeat"
	TypeHeartbeatResponse     MessageType = "heartbeat_response"
	TypeError                 MessageType = "error"
	TypeUnknown               MessageType = "unknown"
)

// Client-to-server subscription control messages. Fire-and-forget: no ack
// contract.
const (
	TypeSubscribeChild   MessageType = "subscribe_child"
	TypeSubscribeService MessageType = "subscribe_service"
	TypeUnsubscribe      MessageType = "unsubscribe"
)

// Message is one classified inbound message. Which fields are populated
// depends on Type; Timestamp is the server's clock and drives reconciliation.
type Message struct {
	Type      MessageType
	Timestamp time.Time

	// child_status_update
	Child          *models.Child
	PreviousStatus id.CheckInStatus
	NewStatus      id.CheckInStatus
	ServiceID      id.ServiceID

	// service_capacity_update
	Service          *models.KidsService
	PreviousCapacity int
	NewCapacity      int

	// check_in_update / check_out_update
	Record *models.CheckInRecord

	// connection_established
	SessionID string

	// error
	ErrorMessage string
	ErrorCode    string
	ErrorDetails map[string]any

	// unknown: the payload exactly as received
	Raw json.RawMessage
}

// wireMessage is the JSON envelope shared by both directions.
type wireMessage struct {
	Type      string                `json:"type"`
	Timestamp string                `json:"timestamp"`
	SessionID string                `json:"sessionId,omitempty"`
	ChildID   string                `json:"childId,omitempty"`
	ServiceID string                `json:"serviceId,omitempty"`
	Child     *models.Child         `json:"child,omitempty"`
	Service   *models.KidsService   `json:"service,omitempty"`
	Record    *models.CheckInRecord `json:"record,omitempty"`

	PreviousStatus   string         `json:"previousStatus,omitempty"`
	NewStatus        string         `json:"newStatus,omitempty"`
	PreviousCapacity *int           `json:"previousCapacity,omitempty"`
	NewCapacity      *int           `json:"newCapacity,omitempty"`
	Message          string         `json:"message,omitempty"`
	Code             string         `json:"code,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
}

// Classify parses one raw frame into a Message. Unparseable payloads and
// unrecognized type discriminators come back as TypeUnknown carrying the raw
// bytes; Classify never fails.
func Classify(raw []byte) Message {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Message{Type: TypeUnknown, Timestamp: time.Now(), Raw: append(json.RawMessage(nil), raw...)}
	}

	ts, tsErr := time.Parse(time.RFC3339Nano, wire.Timestamp)
	if tsErr != nil {
		ts = time.Now()
	}

	msg := Message{Timestamp: ts}
	switch MessageType(wire.Type) {
	case TypeChildStatusUpdate:
		msg.Type = TypeChildStatusUpdate
		msg.Child = wire.Child
		msg.PreviousStatus = id.CheckInStatus(wire.PreviousStatus)
		msg.NewStatus = id.CheckInStatus(wire.NewStatus)
		msg.ServiceID = id.ServiceID(wire.ServiceID)
	case TypeServiceCapacityUpdate:
		msg.Type = TypeServiceCapacityUpdate
		msg.Service = wire.Service
		if wire.PreviousCapacity != nil {
			msg.PreviousCapacity = *wire.PreviousCapacity
		}
		if wire.NewCapacity != nil {
			msg.NewCapacity = *wire.NewCapacity
		}
	case TypeCheckInUpdate:
		msg.Type = TypeCheckInUpdate
		msg.Record = wire.Record
	case TypeCheckOutUpdate:
		msg.Type = TypeCheckOutUpdate
		msg.Record = wire.Record
	case TypeConnectionEstablished:
		msg.Type = TypeConnectionEstablished
		msg.SessionID = wire.SessionID
	case TypeHeartbeat:
		msg.Type = TypeHeartbeat
	case TypeHeartbeatResponse:
		msg.Type = TypeHeartbeatResponse
	case TypeError:
		msg.Type = TypeError
		msg.ErrorMessage = wire.Message
		msg.ErrorCode = wire.Code
		msg.ErrorDetails = wire.Details
	default:
		msg.Type = TypeUnknown
		msg.Raw = append(json.RawMessage(nil), raw...)
	}
	return msg
}

// encodeControl builds a client-to-server control frame.
func encodeControl(msgType MessageType, childID id.ChildID, serviceID id.ServiceID, at time.Time) ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:      string(msgType),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		ChildID:   childID.String(),
		ServiceID: serviceID.String(),
	})
}

// ParseControl decodes a client-to-server frame on the server side. It
// reports false for frames that are not subscription controls or heartbeat
// responses.
func ParseControl(raw []byte) (MessageType, id.ChildID, id.ServiceID, bool) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return TypeUnknown, "", "", false
	}
	switch MessageType(wire.Type) {
	case TypeSubscribeChild, TypeSubscribeService, TypeUnsubscribe, TypeHeartbeatResponse:
		return MessageType(wire.Type), id.ChildID(wire.ChildID), id.ServiceID(wire.ServiceID), true
	default:
		return TypeUnknown, "", "", false
	}
}

// EncodeChildStatusUpdate builds the frame broadcast when a child's status
// changes.
func EncodeChildStatusUpdate(child models.Child, previous id.CheckInStatus, serviceID id.ServiceID, at time.Time) ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:           string(TypeChildStatusUpdate),
		Timestamp:      at.UTC().Format(time.RFC3339Nano),
		Child:          &child,
		PreviousStatus: string(previous),
		NewStatus:      string(child.Status),
		ServiceID:      serviceID.String(),
	})
}

// EncodeServiceCapacityUpdate builds the frame broadcast when a service's
// occupancy moves.
func EncodeServiceCapacityUpdate(service models.KidsService, previousCapacity int, at time.Time) ([]byte, error) {
	current := service.CurrentCapacity
	return json.Marshal(wireMessage{
		Type:             string(TypeServiceCapacityUpdate),
		Timestamp:        at.UTC().Format(time.RFC3339Nano),
		Service:          &service,
		PreviousCapacity: &previousCapacity,
		NewCapacity:      &current,
	})
}

// EncodeRecordUpdate builds the check_in_update or check_out_update frame for
// a record, chosen by the record's status.
func EncodeRecordUpdate(record models.CheckInRecord, at time.Time) ([]byte, error) {
	msgType := TypeCheckInUpdate
	if record.Status == id.StatusCheckedOut {
		msgType = TypeCheckOutUpdate
	}
	return json.Marshal(wireMessage{
		Type:      string(msgType),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Record:    &record,
	})
}

// EncodeConnectionEstablished builds the session handshake frame.
func EncodeConnectionEstablished(sessionID string, at time.Time) ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:      string(TypeConnectionEstablished),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
	})
}

// EncodeHeartbeat builds a server heartbeat frame.
func EncodeHeartbeat(at time.Time) ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:      string(TypeHeartbeat),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	})
}
