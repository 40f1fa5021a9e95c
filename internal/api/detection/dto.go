package detection

import (
	jsoniter "github.com/json-iterator/go"

	"VisionStream/internal/entity"
)

const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventFrame      = "frame"
	EventDetections = "detections"
	EventError      = "error"
)

// Envelope is one text message on the stream socket.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// InboundEnvelope keeps data raw until the event name says how to read it.
type InboundEnvelope struct {
	Event string              `json:"event" validate:"required"`
	Data  jsoniter.RawMessage `json:"data"`
}

type DetectionsPayload struct {
	Detections []entity.Detection `json:"detections"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
