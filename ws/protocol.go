package ws

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	PurposeSubscribe      = "subscribe"
	PurposeCommandRequest = "commandRequest"
	PurposeEvent          = "event"

	protocolVersion = 1
)

// Header is shared by every envelope in both directions.
type Header struct {
	RequestID      string `json:"requestId"`
	MessagePurpose string `json:"messagePurpose"`
	Version        int    `json:"version"`
	MessageType    string `json:"messageType,omitempty"`
	EventName      string `json:"eventName,omitempty"`
}

// Envelope is the type-peek for incoming messages; Body is decoded later
// according to the event kind.
type Envelope struct {
	Header Header          `json:"header"`
	Body   json.RawMessage `json:"body"`
}

// Message is an outgoing envelope.
type Message struct {
	Header Header      `json:"header"`
	Body   interface{} `json:"body"`
}

type SubscribeBody struct {
	EventName string `json:"eventName"`
}

type CommandOrigin struct {
	Type string `json:"type"`
}

type CommandBody struct {
	Origin      CommandOrigin `json:"origin"`
	CommandLine string        `json:"commandLine"`
	Version     int           `json:"version"`
}

func newHeader(purpose string) Header {
	return Header{
		RequestID:      uuid.NewString(),
		MessagePurpose: purpose,
		Version:        protocolVersion,
		MessageType:    PurposeCommandRequest,
	}
}

// NewSubscribe declares interest in an upstream event kind.
func NewSubscribe(eventName string) Message {
	return Message{
		Header: newHeader(PurposeSubscribe),
		Body:   SubscribeBody{EventName: eventName},
	}
}

// NewCommandRequest asks the game server to run commandLine as a player.
func NewCommandRequest(commandLine string) Message {
	return Message{
		Header: newHeader(PurposeCommandRequest),
		Body: CommandBody{
			Origin:      CommandOrigin{Type: "player"},
			CommandLine: commandLine,
			Version:     protocolVersion,
		},
	}
}
