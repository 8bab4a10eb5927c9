package httpapi

import (
	"encoding/json"
	"net/http"

	"fanride/internal/eventstore"
	"fanride/internal/model"
)

// appendRequestBody is the wire shape POSTed to both append routes:
// {expectedVersion, expectedEtag, snapshot, events[]}.
type appendRequestBody struct {
	ExpectedVersion int                  `json:"expectedVersion"`
	ExpectedEtag    string               `json:"expectedEtag"`
	Snapshot        model.AggregateState `json:"snapshot"`
	Events          []eventBody          `json:"events"`
}

type eventBody struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (b appendRequestBody) toAppendRequest(streamID string) eventstore.AppendRequest {
	events := make([]eventstore.NewEvent, 0, len(b.Events))
	for _, e := range b.Events {
		var data interface{}
		if len(e.Payload) > 0 {
			data = e.Payload
		}
		events = append(events, eventstore.NewEvent{ID: e.ID, Kind: e.Kind, Data: data})
	}
	return eventstore.AppendRequest{
		StreamID:        streamID,
		ExpectedVersion: b.ExpectedVersion,
		ExpectedEtag:    b.ExpectedEtag,
		SnapshotState:   b.Snapshot,
		Events:          events,
	}
}

func decodeAppendRequest(w http.ResponseWriter, r *http.Request) (appendRequestBody, bool) {
	var body appendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "malformed request body")
		return appendRequestBody{}, false
	}
	return body, true
}
