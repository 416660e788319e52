package telemetry

import (
	"encoding/json"
	"fmt"
)

// Push-feed event names.
const (
	EventConnected        = "connected"
	EventSystemStats      = "system_stats"
	EventRequestBenchmark = "request_benchmark"
	EventBenchmarkResult  = "benchmark_result"
	EventBenchmarkError   = "benchmark_error"
)

// Envelope is one push-feed frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Greeting is the payload of the connected event.
type Greeting struct {
	Data string `json:"data"`
}

// NewEnvelope marshals payload under the given event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// Client-side pseudo events raised by the feed client itself when the
// connection opens or closes. They never travel on the wire.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)
