package playerwatch

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/playerwatch/kit"
)

// RegisterMCP registers the find_player and state tools.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	eps := e.endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        ServiceFindPlayer,
		Description: "Locate the media player inside a container element (by id) or the whole page, assigning it an id if needed.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"container": map[string]any{"type": "string", "description": "Container element id; empty for the whole page"},
			},
		},
	}, eps[ServiceFindPlayer], func(req *mcp.CallToolRequest) (any, error) {
		var r findPlayerReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &r, nil
	})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        ServiceState,
		Description: "Report the page format, visibility flags, attached player and widget lifecycle state.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}, eps[ServiceState], func(*mcp.CallToolRequest) (any, error) {
		return nil, nil
	})
}
