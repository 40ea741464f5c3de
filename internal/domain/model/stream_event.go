package model

import "encoding/json"

type StreamEventType string

const (
	EventStatus StreamEventType = "status"
	EventToken  StreamEventType = "token"
	EventDone   StreamEventType = "done"
)

// StreamEvent is the unit delivered to a client during one exchange.
// A well-formed exchange is status* token* done.
type StreamEvent struct {
	Type    StreamEventType
	Message string // status only
	Text    string // token only
}

func StatusEvent(msg string) StreamEvent { return StreamEvent{Type: EventStatus, Message: msg} }
func TokenEvent(text string) StreamEvent { return StreamEvent{Type: EventToken, Text: text} }
func DoneEvent() StreamEvent             { return StreamEvent{Type: EventDone} }

// Data is the payload written on the wire for this event.
func (e StreamEvent) Data() string {
	switch e.Type {
	case EventStatus:
		return e.Message
	case EventToken:
		return e.Text
	default:
		return "[DONE]"
	}
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStatus:
		return json.Marshal(struct {
			Type    StreamEventType `json:"type"`
			Message string          `json:"message"`
		}{e.Type, e.Message})
	case EventToken:
		return json.Marshal(struct {
			Type StreamEventType `json:"type"`
			Text string          `json:"text"`
		}{e.Type, e.Text})
	default:
		return json.Marshal(struct {
			Type StreamEventType `json:"type"`
		}{e.Type})
	}
}
