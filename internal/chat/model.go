package chat

import "time"

// Message is a chat message as stored and as broadcast to clients.
// Identity fields are client-asserted; the server does not re-derive them
// from a session.
type Message struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserImage *string   `json:"userImage"`
	Hypes     int       `json:"hypes"`
	CreatedAt time.Time `json:"createdAt"`
}

// SendOutcome tags which path produced a broadcast message: the persisted
// row, or a synthesized stand-in emitted after the insert failed. The wire
// shape is identical either way.
type SendOutcome struct {
	Message   Message
	Synthetic bool
}

// SendPayload is the client->server body of a chat:message event.
type SendPayload struct {
	Content   string  `json:"content"`
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
	UserImage *string `json:"userImage"`
}

// HypePayload is the client->server body of a message:hype event.
type HypePayload struct {
	MessageID int64 `json:"messageId"`
}

// HypeUpdate is the server->client body of a message:hype event.
type HypeUpdate struct {
	MessageID int64 `json:"messageId"`
	Hypes     int   `json:"hypes"`
}

// DeletePayload doubles as the client->server body and the server->client
// deletion notice of a message:delete event.
type DeletePayload struct {
	MessageID int64 `json:"messageId"`
}
