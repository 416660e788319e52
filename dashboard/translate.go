package dashboard

import (
	"errors"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// Translate maps a push-feed frame to a session event. It returns a nil
// event for frames the dashboard does not react to.
func Translate(env telemetry.Envelope) (Event, error) {
	switch env.Event {
	case telemetry.EventConnect:
		return Connected{}, nil

	case telemetry.EventDisconnect:
		var reason telemetry.ErrorResponse
		if len(env.Data) > 0 {
			_ = env.Decode(&reason)
		}
		if reason.Error != "" {
			return Disconnected{Err: errors.New(reason.Error)}, nil
		}
		return Disconnected{}, nil

	case telemetry.EventSystemStats:
		var st telemetry.Stats
		if err := env.Decode(&st); err != nil {
			return nil, err
		}
		return StatsReceived{Stats: st}, nil

	case telemetry.EventBenchmarkResult:
		var c telemetry.Comparison
		if err := env.Decode(&c); err != nil {
			return nil, err
		}
		return ComparisonReceived{Comparison: c}, nil

	case telemetry.EventBenchmarkError:
		var e telemetry.ErrorResponse
		if err := env.Decode(&e); err != nil {
			return nil, err
		}
		return BenchmarkFailed{Title: TitleBenchmarkError, Message: e.Error}, nil
	}

	return nil, nil
}
