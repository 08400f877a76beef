package chat

import (
	"github.com/goccy/go-json"
)

// Event names carried over the socket. Client->server: chat:message,
// message:hype, message:delete. Server->client: all of the below.
const (
	EventChatMessage     = "chat:message"
	EventMessageHype     = "message:hype"
	EventMessageDelete   = "message:delete"
	EventUsersCount      = "users:count"
	EventExecutionUpdate = "execution_update"
)

// Envelope frames every websocket message as a named event with a JSON
// payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEvent marshals an event name and payload into a wire frame.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeEvent parses a wire frame back into an envelope.
func DecodeEvent(frame []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(frame, &env)
	return env, err
}
