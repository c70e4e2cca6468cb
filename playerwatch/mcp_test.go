package playerwatch_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/playerwatch/playerwatch"
)

var testMCPImpl = &mcp.Implementation{Name: "playerwatch-test", Version: "0.1.0"}

func mcpSession(t *testing.T, eng *playerwatch.Engine) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	eng.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return result
}

func mcpText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return tc.Text
}

func TestMCP_FindPlayer(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})
	session := mcpSession(t, f.eng)

	text := mcpText(t, mcpCall(t, session, playerwatch.ServiceFindPlayer, map[string]any{"container": "sec"}))
	var resp playerwatch.FindPlayerResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Found || resp.Player == nil || resp.Player.ID != "v1" {
		t.Fatalf("response: %s", text)
	}

	text = mcpText(t, mcpCall(t, session, playerwatch.ServiceFindPlayer, map[string]any{"container": "empty"}))
	if text != `{"found":false}` {
		t.Fatalf("empty container: %s", text)
	}
}

func TestMCP_FindPlayerUnknownContainer(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})
	session := mcpSession(t, f.eng)

	result := mcpCall(t, session, playerwatch.ServiceFindPlayer, map[string]any{"container": "nope"})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCP_State(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})
	if err := f.eng.Setup(context.Background(), playerwatch.Params{}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "widget loaded", func() bool { return f.eng.State().Loaded })
	session := mcpSession(t, f.eng)

	text := mcpText(t, mcpCall(t, session, playerwatch.ServiceState, map[string]any{}))
	var st playerwatch.State
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !st.SetUp || !st.Loaded || st.Attached == nil || st.Attached.ID != "v1" {
		t.Fatalf("state: %s", text)
	}
}
