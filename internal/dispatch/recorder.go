package dispatch

import "time"

// Failure reasons passed to Recorder.DispatchFailed.
const (
	ReasonConnect = "connect"
	ReasonWrite   = "write"
	ReasonAck     = "ack"
)

// Recorder receives delivery telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	DispatchFailed(reason string)
	EventDelivered(latency time.Duration)
	CollectorConnected(connected bool)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) DispatchFailed(string)        {}
func (NopRecorder) EventDelivered(time.Duration) {}
func (NopRecorder) CollectorConnected(bool)      {}
