// Package protocol defines the websocket messages exchanged between a
// perception source and the sentinel ingest endpoint.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/sentinel/pkg/site"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Source → server
	TypeObservations MessageType = "observations" // one batch of worker snapshots

	// Server → source
	TypeAck   MessageType = "ack"   // batch applied
	TypeError MessageType = "error" // batch rejected

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// ErrUnknownType is returned for messages with a type outside the set above.
var ErrUnknownType = errors.New("protocol: unknown message type")

// Message is the base wrapper for all websocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	switch msg.Type {
	case TypeObservations, TypeAck, TypeError, TypePing, TypePong:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return &msg, nil
}

// ObservationsData carries one complete batch. Workers absent from the
// batch stop being tracked.
type ObservationsData struct {
	Seq     uint64          `json:"seq,omitempty"`
	Workers json.RawMessage `json:"workers"`
}

// AckData reports what the server did with a batch.
type AckData struct {
	Seq       uint64 `json:"seq,omitempty"`
	Workers   int    `json:"workers"`
	Incidents int    `json:"incidents"`
}

// ErrorData explains a rejected message.
type ErrorData struct {
	Seq   uint64 `json:"seq,omitempty"`
	Error string `json:"error"`
}

// PongData answers a ping.
type PongData struct {
	PingTS   int64 `json:"ping_ts"`
	ServerTS int64 `json:"server_ts"`
}

// GetObservations decodes and validates the batch in an observations message.
func (m *Message) GetObservations() (uint64, []site.WorkerSnapshot, error) {
	var data ObservationsData
	if err := m.ParseData(&data); err != nil {
		return 0, nil, fmt.Errorf("protocol: observations: %w", err)
	}
	if len(data.Workers) == 0 {
		return data.Seq, nil, fmt.Errorf("protocol: observations: workers required")
	}
	batch, err := site.DecodeBatch(data.Workers)
	if err != nil {
		return data.Seq, nil, err
	}
	return data.Seq, batch, nil
}

// NewObservationsMessage creates an observations message for batch.
func NewObservationsMessage(seq uint64, batch []site.WorkerSnapshot) (*Message, error) {
	if batch == nil {
		batch = []site.WorkerSnapshot{}
	}
	workers, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	return NewMessage(TypeObservations, ObservationsData{Seq: seq, Workers: workers})
}

// NewAckMessage creates an ack for a processed batch.
func NewAckMessage(seq uint64, workers, incidents int) (*Message, error) {
	return NewMessage(TypeAck, AckData{Seq: seq, Workers: workers, Incidents: incidents})
}

// NewErrorMessage creates an error reply.
func NewErrorMessage(seq uint64, err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Seq: seq, Error: err.Error()})
}

// NewPongMessage creates a pong response
func NewPongMessage(pingTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{PingTS: pingTS, ServerTS: time.Now().UnixMilli()})
}
