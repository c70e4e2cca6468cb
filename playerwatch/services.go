package playerwatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/playerwatch/connectivity"
	"github.com/hazyhaar/playerwatch/kit"
)

// RegisterConnectivity registers the read-only queries as local services:
// playerwatch_find_player ({"container": id}) and playerwatch_state.
func (e *Engine) RegisterConnectivity(router *connectivity.Router) {
	eps := e.endpoints()
	router.RegisterLocal(ServiceFindPlayer, jsonHandler(eps[ServiceFindPlayer], func() any { return &findPlayerReq{} }))
	router.RegisterLocal(ServiceState, jsonHandler(eps[ServiceState], func() any { return nil }))
}

func jsonHandler(ep kit.Endpoint, newReq func() any) connectivity.Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		ctx = kit.WithTransport(ctx, "connectivity")
		req := newReq()
		if req != nil && len(payload) > 0 {
			if err := json.Unmarshal(payload, req); err != nil {
				return nil, fmt.Errorf("playerwatch: decode request: %w", err)
			}
		}
		resp, err := ep(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}
