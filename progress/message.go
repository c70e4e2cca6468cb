package progress

import (
	"encoding/json"
	"fmt"
)

// Audience tags every cross-window message of the widget protocol.
const Audience = "annoto_widget"

// Frame kinds hosting a widget in an iframe.
const (
	FrameLTI     = "lti"
	FrameKaltura = "kaltura"
)

// CorrelationID names one iframe subscription.
func CorrelationID(frameKind, iframeID string) string {
	return fmt.Sprintf("playerwatch_%s_mod_%s", frameKind, iframeID)
}

// Message is posted into the iframe.
type Message struct {
	Aud    string `json:"aud"`
	ID     string `json:"id"`
	Action string `json:"action"`
	Data   string `json:"data"`
}

// SubscribeMessage asks the iframe widget for my_activity events.
func SubscribeMessage(id string) Message {
	return Message{Aud: Audience, ID: id, Action: "subscribe", Data: "my_activity"}
}

// Response is posted back by the iframe.
type Response struct {
	Aud  string          `json:"aud"`
	ID   string          `json:"id"`
	Type string          `json:"type"` // subscribe | event
	Err  string          `json:"err,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is the data of a Response of type "event".
type Event struct {
	EventName string          `json:"eventName"`
	EventData json.RawMessage `json:"eventData"`
}

// ParseResponse decodes a posted message addressed to id. Anything else,
// malformed input included, yields false.
func ParseResponse(data []byte, id string) (*Response, bool) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false
	}
	if r.Aud != Audience || r.ID != id {
		return nil, false
	}
	return &r, true
}

// Event decodes the event payload, or returns nil.
func (r *Response) Event() *Event {
	if r.Type != "event" || len(r.Data) == 0 {
		return nil
	}
	var e Event
	if err := json.Unmarshal(r.Data, &e); err != nil {
		return nil
	}
	return &e
}
