package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dreams-grid/dreams-core/internal/control"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client used for events.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// DispatchEvent is published on dreams/event/dispatch/{plant_no}.
type DispatchEvent struct {
	Op         string    `json:"op"`
	Kind       string    `json:"kind"`
	PlantNo    string    `json:"plant_no"`
	GatewayID  string    `json:"gateway_id"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// EventRecorder announces dispatch outcomes over MQTT. It implements
// control.Recorder.
type EventRecorder struct {
	publisher Publisher
	qos       byte
	logger    Logger
}

// NewEventRecorder creates an event recorder.
func NewEventRecorder(publisher Publisher, qos byte) *EventRecorder {
	return &EventRecorder{publisher: publisher, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *EventRecorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Record implements control.Recorder.
func (r *EventRecorder) Record(_ context.Context, rec control.DispatchRecord) {
	ev := DispatchEvent{
		Op:         rec.Op,
		Kind:       string(rec.Kind),
		PlantNo:    rec.PlantNo,
		GatewayID:  rec.GatewayID,
		Outcome:    rec.Outcome,
		DurationMS: rec.Duration.Milliseconds(),
		At:         rec.At.UTC(),
	}
	if rec.Err != nil {
		ev.Error = rec.Err.Error()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("encoding dispatch event", "plant_no", rec.PlantNo, "error", err)
		return
	}
	if err := r.publisher.Publish(mqtt.Topics{}.DispatchEvent(rec.PlantNo), body, r.qos, false); err != nil {
		r.logger.Warn("publishing dispatch event", "plant_no", rec.PlantNo, "error", err)
	}
}
