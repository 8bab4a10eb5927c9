// Package httpapi exposes the event-store append path, the three
// read-model query endpoints, and the websocket hub over the HTTP surface
// described in the design notes: a liveness string, a health aggregate,
// and the /api/... JSON routes, all on Go 1.22's method-prefixed
// http.ServeMux.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fanride/internal/common"
	ferrors "fanride/internal/errors"
	"fanride/internal/eventstore"
	"fanride/internal/hub"
	"fanride/internal/readmodel"
)

const (
	maxEventBodyBytes = 1 << 20 // 1 MiB
	requestTimeout    = 10 * time.Second
)

// Handler wires the HTTP surface to the event store, read-model service,
// and hub; Health aggregates the subchecks main wires in (store
// reachability, projector liveness, hub run-loop liveness).
type Handler struct {
	Events *eventstore.Store
	Reads  *readmodel.Service
	Hub    *hub.Hub
	Health *HealthChecker
}

// Routes builds the full mux described by the external-interfaces table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", h.liveness)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/matches/{streamId}", withTimeout(h.getMatchState, requestTimeout))
	mux.HandleFunc("GET /api/afl/matches/{streamId}", withTimeout(h.getAflMatch, requestTimeout))
	mux.HandleFunc("POST /api/matches/{streamId}/events", maxBodySize(withTimeout(h.postEvents, requestTimeout), maxEventBodyBytes))
	mux.HandleFunc("POST /api/afl/matches/{streamId}/apply", maxBodySize(withTimeout(h.postAflApply, requestTimeout), maxEventBodyBytes))
	mux.HandleFunc("GET /api/readmodels/tes/{streamId}", withTimeout(h.getMomentum, requestTimeout))
	mux.HandleFunc("GET /api/readmodels/leaderboard", withTimeout(h.getLeaderboard, requestTimeout))
	mux.HandleFunc("GET /hub/match", h.serveHub)

	return mux
}

func (h *Handler) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("FanRide backend running"))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.Health == nil {
		writeJSON(w, http.StatusOK, healthReport{OK: true})
		return
	}
	report := h.Health.run(r.Context())
	status := http.StatusOK
	if !report.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (h *Handler) getMatchState(w http.ResponseWriter, r *http.Request) {
	streamID := r.PathValue("streamId")
	if !common.ValidStreamID(streamID) {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid streamId")
		return
	}
	snap, err := h.Events.ReadSnapshot(r.Context(), streamID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var sd matchStateSnapshot
	if err := json.Unmarshal(snap.Body, &sd); err != nil {
		writeInternalError(w, err, "malformed snapshot")
		return
	}
	writeJSON(w, http.StatusOK, sd.State)
}

func (h *Handler) getAflMatch(w http.ResponseWriter, r *http.Request) {
	streamID := r.PathValue("streamId")
	if !common.ValidStreamID(streamID) {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid streamId")
		return
	}
	snap, err := h.Events.ReadSnapshot(r.Context(), streamID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var sd matchStateSnapshot
	if err := json.Unmarshal(snap.Body, &sd); err != nil {
		writeInternalError(w, err, "malformed snapshot")
		return
	}
	writeJSON(w, http.StatusOK, aflMatchEnvelope{
		StreamID:         streamID,
		AggregateVersion: sd.AggVersion,
		ETag:             snap.ETag,
		State:            sd.State,
	})
}

// matchStateSnapshot decodes just the fields the two GET handlers need out
// of a store.Document body shaped like model.SnapshotDoc.
type matchStateSnapshot struct {
	AggVersion int             `json:"aggVersion"`
	State      json.RawMessage `json:"state"`
}

type aflMatchEnvelope struct {
	StreamID         string          `json:"streamId"`
	AggregateVersion int             `json:"aggregateVersion"`
	ETag             string          `json:"etag"`
	State            json.RawMessage `json:"state"`
}

func (h *Handler) postEvents(w http.ResponseWriter, r *http.Request) {
	streamID := r.PathValue("streamId")
	if !common.ValidStreamID(streamID) {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid streamId")
		return
	}
	req, ok := decodeAppendRequest(w, r)
	if !ok {
		return
	}
	if err := h.Events.AppendWithSnapshot(r.Context(), req.toAppendRequest(streamID)); err != nil {
		writeAppendError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) postAflApply(w http.ResponseWriter, r *http.Request) {
	streamID := r.PathValue("streamId")
	if !common.ValidStreamID(streamID) {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid streamId")
		return
	}
	req, ok := decodeAppendRequest(w, r)
	if !ok {
		return
	}
	if err := h.Events.AppendWithSnapshot(r.Context(), req.toAppendRequest(streamID)); err != nil {
		writeAppendError(w, err)
		return
	}
	h.getAflMatch(w, r)
}

func (h *Handler) getMomentum(w http.ResponseWriter, r *http.Request) {
	streamID := r.PathValue("streamId")
	if !common.ValidStreamID(streamID) {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid streamId")
		return
	}
	view, err := h.Reads.GetMomentum(r.Context(), streamID, 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.Reads.GetLeaderboard(r.Context(), 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) serveHub(w http.ResponseWriter, r *http.Request) {
	hub.ServeWs(h.Hub, h.Reads, w, r)
}

// writeJSON writes status with data as the JSON body.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("httpapi: failed to encode response", "error", err)
	}
}

// problem is the 412 response shape named by the external-interfaces
// table: the concurrency-failure error message lives in detail.
type problem struct {
	Detail string `json:"detail"`
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, problem{Detail: detail})
}

// apiError is the flat error shape used for every non-412 failure.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeNotFound      = "NOT_FOUND"
	errCodeInternalError = "INTERNAL_ERROR"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

func writeInternalError(w http.ResponseWriter, err error, message string) {
	slog.Error("httpapi: internal error", "error", err)
	writeError(w, http.StatusInternalServerError, errCodeInternalError, message)
}

// writeStoreError maps the read-side error taxonomy onto HTTP status
// codes for GET endpoints, which never need the problem.detail shape.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ferrors.ErrNotFound):
		writeError(w, http.StatusNotFound, errCodeNotFound, "not found")
	default:
		writeInternalError(w, err, "internal storage error")
	}
}

// writeAppendError maps AppendWithSnapshot's error taxonomy onto HTTP
// status codes. Concurrency failures use the problem.detail shape named
// by the spec; everything else falls back to the flat apiError shape.
func writeAppendError(w http.ResponseWriter, err error) {
	if eventstore.IsConcurrencyErr(err) {
		writeProblem(w, http.StatusPreconditionFailed, err.Error())
		return
	}
	writeInternalError(w, err, "append failed")
}

// maxBodySize caps the request body next reads, matching the teacher
// gateway's guard against oversized payloads.
func maxBodySize(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next(w, r)
	}
}

// withTimeout bounds how long a handler may run against the backing
// store before the request context is cancelled.
func withTimeout(next http.HandlerFunc, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}
