// Package readmodel serves the three query-side projections the
// change-feed projector maintains: current match state, momentum history,
// and the rider leaderboard. It never writes; the projector owns all
// mutation of these containers.
package readmodel

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	ferrors "fanride/internal/errors"
	"fanride/internal/store"
)

const (
	containerMatchState = "rm_match_state"
	containerMomentum   = "rm_tes_history"
	containerLeaderboard = "rm_leaderboard"

	defaultMomentumPoints = 60
	defaultLeaderboardTop = 10
)

// Service is the read-only query surface over the projected containers.
type Service struct {
	backend store.Backend
}

func New(backend store.Backend) *Service {
	return &Service{backend: backend}
}

// MatchStateView is the flattened shape served by GetMatchState.
type MatchStateView struct {
	StreamID  string    `json:"streamId"`
	ScoreHome int       `json:"scoreHome"`
	ScoreAway int       `json:"scoreAway"`
	Quarter   int       `json:"quarter"`
	Clock     string    `json:"clock"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetMatchState reads the current-match-state row by id=streamId.
func (s *Service) GetMatchState(ctx context.Context, streamID string) (*MatchStateView, error) {
	doc, err := s.backend.ReadItem(ctx, containerMatchState, streamID, streamID)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(doc.Body, &m); err != nil {
		return nil, ferrors.New(ferrors.KindFatal, "GetMatchState", err)
	}
	state := fieldMap(m, "state")
	view := &MatchStateView{
		StreamID: fieldString(m, "streamId", streamID),
		Quarter:  fieldInt(state, "quarter", 0),
		Clock:    fieldString(state, "clock", ""),
	}
	if score := fieldMap(state, "score"); score != nil {
		view.ScoreHome = fieldInt(score, "home", 0)
		view.ScoreAway = fieldInt(score, "away", 0)
	}
	if ts, ok := field(m, "updatedAt"); ok {
		if parsed, ok := parseTime(ts); ok {
			view.UpdatedAt = parsed
		}
	}
	return view, nil
}

// MomentumPoint is one sample in a momentum window.
type MomentumPoint struct {
	Watts       float64   `json:"watts"`
	Cadence     float64   `json:"cadence"`
	HeartRate   float64   `json:"heartRate"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// MomentumView is the response shape for GetMomentum.
type MomentumView struct {
	StreamID string          `json:"streamId"`
	Points   []MomentumPoint `json:"points"`
}

// GetMomentum returns up to maxPoints most recent momentum samples for a
// stream, sorted ascending by capturedAt regardless of storage order. A
// maxPoints <= 0 uses the default of 60.
func (s *Service) GetMomentum(ctx context.Context, streamID string, maxPoints int) (*MomentumView, error) {
	if maxPoints <= 0 {
		maxPoints = defaultMomentumPoints
	}
	docs, err := s.backend.Query(ctx, store.Query{
		Container:    containerMomentum,
		PartitionKey: streamID,
		OrderBy:      []store.Order{{Field: "ts", Direction: "desc"}},
		Limit:        maxPoints,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ferrors.ErrNotFound
	}

	points := make([]MomentumPoint, 0, len(docs))
	for _, d := range docs {
		var m map[string]interface{}
		if err := json.Unmarshal(d.Body, &m); err != nil {
			continue
		}
		metrics := fieldMap(m, "metrics")
		p := MomentumPoint{
			Watts:     fieldFloat(metrics, "watts", 0),
			Cadence:   fieldFloat(metrics, "cadence", 0),
			HeartRate: fieldFloat(metrics, "heartRate", 0),
		}
		if ts, ok := field(m, "ts"); ok {
			if parsed, ok := parseTime(ts); ok {
				p.CapturedAt = parsed
			}
		}
		if p.CapturedAt.IsZero() {
			p.CapturedAt = time.Now().UTC()
		}
		points = append(points, p)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].CapturedAt.Before(points[j].CapturedAt)
	})
	return &MomentumView{StreamID: streamID, Points: points}, nil
}

// LeaderboardEntry is one rider's row in the leaderboard.
type LeaderboardEntry struct {
	RiderID   string    `json:"riderId"`
	Watts     float64   `json:"watts"`
	Cadence   float64   `json:"cadence"`
	HeartRate float64   `json:"heartRate"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LeaderboardView is the response shape for GetLeaderboard.
type LeaderboardView struct {
	Entries     []LeaderboardEntry `json:"entries"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// GetLeaderboard returns the top ranked-by-watts rider rows across all
// streams. top <= 0 uses the default of 10.
func (s *Service) GetLeaderboard(ctx context.Context, top int) (*LeaderboardView, error) {
	if top <= 0 {
		top = defaultLeaderboardTop
	}
	docs, err := s.backend.Query(ctx, store.Query{
		Container: containerLeaderboard,
		OrderBy:   []store.Order{{Field: "metrics.watts", Direction: "desc"}},
		Limit:     top,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(docs))
	for _, d := range docs {
		var m map[string]interface{}
		if err := json.Unmarshal(d.Body, &m); err != nil {
			continue
		}
		metrics := fieldMap(m, "metrics")
		e := LeaderboardEntry{
			RiderID:   fieldString(m, "streamId", ""),
			Watts:     fieldFloat(metrics, "watts", 0),
			Cadence:   fieldFloat(metrics, "cadence", 0),
			HeartRate: fieldFloat(metrics, "heartRate", 0),
		}
		if ts, ok := field(m, "updatedAt"); ok {
			if parsed, ok := parseTime(ts); ok {
				e.UpdatedAt = parsed
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Watts > entries[j].Watts
	})
	return &LeaderboardView{Entries: entries, GeneratedAt: time.Now().UTC()}, nil
}

func parseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case time.Time:
		return t, true
	default:
		return time.Time{}, false
	}
}
