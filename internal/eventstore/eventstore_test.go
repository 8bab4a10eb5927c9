package eventstore

import (
	"context"
	"encoding/json"
	"testing"

	ferrors "fanride/internal/errors"
	"fanride/internal/model"
	"fanride/internal/store"
	"fanride/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, store.Backend) {
	b := memory.New()
	return New(b), b
}

func TestAppendWithSnapshot_FreshStream(t *testing.T) {
	s, b := newTestStore()
	ctx := context.Background()

	err := s.AppendWithSnapshot(ctx, AppendRequest{
		StreamID:        "m1",
		ExpectedVersion: 0,
		ExpectedEtag:    "",
		SnapshotState:   model.AggregateState{Score: model.Score{Home: 0, Away: 1}, Quarter: 1, Clock: "01:23"},
		Events:          []NewEvent{{ID: "e1", Kind: "MatchStateUpdated", Data: map[string]interface{}{"x": 1}}},
	})
	require.NoError(t, err)

	doc, err := b.ReadItem(ctx, containerES, "e1", "m1")
	require.NoError(t, err)
	var ed model.EventDoc
	require.NoError(t, decodeInto(doc.Body, &ed))
	assert.Equal(t, 1, ed.Seq)

	snap, err := s.ReadSnapshot(ctx, "m1")
	require.NoError(t, err)
	var sd model.SnapshotDoc
	require.NoError(t, decodeInto(snap.Body, &sd))
	assert.Equal(t, 1, sd.AggVersion)
	assert.NotEmpty(t, snap.ETag)
}

func TestAppendWithSnapshot_VersionConflict(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	req := AppendRequest{
		StreamID:        "m1",
		ExpectedVersion: 0,
		SnapshotState:   model.AggregateState{Quarter: 1},
		Events:          []NewEvent{{ID: "e1", Kind: "MatchStateUpdated"}},
	}
	require.NoError(t, s.AppendWithSnapshot(ctx, req))

	req2 := AppendRequest{
		StreamID:        "m1",
		ExpectedVersion: 0,
		ExpectedEtag:    "",
		SnapshotState:   model.AggregateState{Quarter: 2},
		Events:          []NewEvent{{ID: "e2", Kind: "MatchStateUpdated"}},
	}
	err := s.AppendWithSnapshot(ctx, req2)
	require.Error(t, err)
	assert.True(t, IsConcurrencyErr(err))
	assert.True(t, ferrors.Is(err, ferrors.KindConflict))
}

func TestAppendWithSnapshot_OutboxCreatedForTrainerMetrics(t *testing.T) {
	s, b := newTestStore()
	ctx := context.Background()

	err := s.AppendWithSnapshot(ctx, AppendRequest{
		StreamID:        "m1",
		ExpectedVersion: 0,
		SnapshotState:   model.AggregateState{},
		Events: []NewEvent{{
			ID:   "e1",
			Kind: "TrainerMetricsCaptured",
			Data: model.TrainerMetrics{Watts: 300},
		}},
	})
	require.NoError(t, err)

	_, err = b.ReadItem(ctx, containerES, "out-e1", "m1")
	require.NoError(t, err)
}

func TestAppendWithSnapshot_EtagGuardAdvances(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.AppendWithSnapshot(ctx, AppendRequest{
		StreamID:        "m1",
		ExpectedVersion: 0,
		SnapshotState:   model.AggregateState{Quarter: 1},
		Events:          []NewEvent{{ID: "e1", Kind: "MatchStateUpdated"}},
	}))

	snap, err := s.ReadSnapshot(ctx, "m1")
	require.NoError(t, err)

	err = s.AppendWithSnapshot(ctx, AppendRequest{
		StreamID:        "m1",
		ExpectedVersion: 1,
		ExpectedEtag:    snap.ETag,
		SnapshotState:   model.AggregateState{Quarter: 2},
		Events:          []NewEvent{{ID: "e2", Kind: "MatchStateUpdated"}},
	})
	require.NoError(t, err)

	snap2, err := s.ReadSnapshot(ctx, "m1")
	require.NoError(t, err)
	var sd model.SnapshotDoc
	require.NoError(t, decodeInto(snap2.Body, &sd))
	assert.Equal(t, 2, sd.AggVersion)
	assert.NotEqual(t, snap.ETag, snap2.ETag)
}

func decodeInto(body []byte, v interface{}) error {
	return json.Unmarshal(body, v)
}
