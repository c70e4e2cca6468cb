package playerwatch

import (
	"context"
	"errors"

	"github.com/hazyhaar/playerwatch/kit"
	"github.com/hazyhaar/playerwatch/player"
)

// Service names shared by every query surface.
const (
	ServiceFindPlayer = "playerwatch_find_player"
	ServiceState      = "playerwatch_state"
	ServiceAuth       = "playerwatch_auth"
)

type findPlayerReq struct {
	Container string `json:"container"`
}

// FindPlayerResponse is the find_player answer.
type FindPlayerResponse struct {
	Found  bool               `json:"found"`
	Player *player.Descriptor `json:"player,omitempty"`
}

type authReq struct {
	Token string `json:"token"`
}

func (e *Engine) endpoints() map[string]kit.Endpoint {
	eps := map[string]kit.Endpoint{
		ServiceFindPlayer: func(_ context.Context, req any) (any, error) {
			r := req.(*findPlayerReq)
			d, err := e.FindPlayerIn(r.Container)
			if err != nil {
				return nil, err
			}
			return FindPlayerResponse{Found: d != nil, Player: d}, nil
		},
		ServiceState: func(context.Context, any) (any, error) {
			return e.State(), nil
		},
		ServiceAuth: func(ctx context.Context, req any) (any, error) {
			r := req.(*authReq)
			if r.Token == "" {
				return nil, errors.New("playerwatch: empty token")
			}
			if err := e.Auth(ctx, r.Token); err != nil {
				return nil, err
			}
			return map[string]bool{"ok": true}, nil
		},
	}
	for name, ep := range eps {
		eps[name] = kit.Logging(e.logger, name)(ep)
	}
	return eps
}
