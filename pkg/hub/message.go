// Package hub fans live-feed frames out to dashboard websocket clients.
package hub

// Message is one encoded feed frame. Frames are JSON and go out as text.
type Message struct {
	Data []byte
}

// NewJSONMessage wraps an already encoded JSON document.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
