package readmodel

import (
	"context"
	"encoding/json"

	ferrors "fanride/internal/errors"
)

// GetMatchStateJSON, GetMomentumJSON, and GetLeaderboardJSON adapt Service
// to the hub.ReadModels interface: the hub only ever forwards these views
// to clients as opaque JSON payloads, so it has no need of the typed
// view structs in readmodel.go.

func (s *Service) GetMatchStateJSON(ctx context.Context, streamID string) (json.RawMessage, bool, error) {
	v, err := s.GetMatchState(ctx, streamID)
	if ferrors.Is(err, ferrors.KindFatal) {
		return nil, false, err
	}
	if err != nil {
		return nil, false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *Service) GetMomentumJSON(ctx context.Context, streamID string) (json.RawMessage, bool, error) {
	v, err := s.GetMomentum(ctx, streamID, 0)
	if err != nil {
		return nil, false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *Service) GetLeaderboardJSON(ctx context.Context) (json.RawMessage, error) {
	v, err := s.GetLeaderboard(ctx, 0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
