package hub

import "encoding/json"

// Message types exchanged over the /hub/match connection.
const (
	TypeSubscribe    = "subscribe"
	TypeSubscribeAck = "subscribeAck"
	TypeMetrics      = "metrics"
	TypeMatchState   = "matchState"
	TypeTesHistory   = "tesHistory"
	TypeLeaderboard  = "leaderboard"
	TypeTrainerEffect = "trainerEffect"
	TypeError        = "error"
)

// Message is the envelope for every frame exchanged over the hub.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is sent by a client to join a stream's broadcast group.
type SubscribePayload struct {
	StreamID string `json:"streamId"`
}

// MetricsPayload is sent by a client submitting live trainer metrics.
type MetricsPayload struct {
	Watts     float64 `json:"watts"`
	Cadence   float64 `json:"cadence"`
	HeartRate float64 `json:"heartRate"`
}

// ErrorPayload carries a client-facing error description.
type ErrorPayload struct {
	Message string `json:"message"`
}

func mustMarshal(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func newMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: mustMarshal(payload)}
}
