package rodsdk

import (
	"encoding/json"
	"testing"
)

func TestReceive_RoutesByEvent(t *testing.T) {
	s := &SDK{handlers: make(map[string][]func(json.RawMessage))}
	var ready, activity int
	var got json.RawMessage
	s.handlers["ready"] = append(s.handlers["ready"], func(json.RawMessage) { ready++ })
	s.handlers["my_activity"] = append(s.handlers["my_activity"], func(p json.RawMessage) {
		activity++
		got = p
	})

	s.receive(json.RawMessage(`{"type":"sdk","event":"my_activity","payload":{"completion":12}}`))
	s.receive(json.RawMessage(`{"type":"sdk","event":"ready","payload":null}`))
	s.receive(json.RawMessage(`not json`))
	s.receive(json.RawMessage(`{"type":"sdk","event":"other"}`))

	if ready != 1 || activity != 1 {
		t.Fatalf("ready=%d activity=%d", ready, activity)
	}
	if string(got) != `{"completion":12}` {
		t.Fatalf("payload: %s", got)
	}
}

func TestHookArgs(t *testing.T) {
	s := &SDK{hooks: Hooks{LoginURL: "https://lms/login", MediaTitle: "Lecture 1"}}
	args := s.hookArgs()
	if args["loginUrl"] != "https://lms/login" || args["title"] != "Lecture 1" || args["description"] != "" {
		t.Fatalf("got %v", args)
	}
}
