package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of live event pushed to dashboards
type MessageType string

const (
	MessageTypeRecordCreated    MessageType = "record_created"
	MessageTypeRecordUpdated    MessageType = "record_updated"
	MessageTypeRecordDeleted    MessageType = "record_deleted"
	MessageTypeRecordsImported  MessageType = "records_imported"
	MessageTypeAggregateUpdated MessageType = "aggregate_updated"
	MessageTypeAggregateRemoved MessageType = "aggregate_removed"
	MessageTypeBackendDegraded  MessageType = "backend_degraded"
)

// Message is the envelope for all WebSocket communications
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// RecordDeletedMessage is the payload for MessageTypeRecordDeleted
type RecordDeletedMessage struct {
	ID        string `json:"id"`
	MonthYear string `json:"month_year"`
}

// RecordsImportedMessage is the payload for MessageTypeRecordsImported
type RecordsImportedMessage struct {
	Count  int      `json:"count"`
	Months []string `json:"months"`
}

// AggregateRemovedMessage is the payload for MessageTypeAggregateRemoved
type AggregateRemovedMessage struct {
	MonthYear string `json:"month_year"`
}

// BackendDegradedMessage is the payload for MessageTypeBackendDegraded
type BackendDegradedMessage struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	err := json.Unmarshal(m.Payload, v)
	if err != nil {
		return err
	}
	return nil
}
