package control

import (
	"context"
	"time"

	"github.com/dreams-grid/dreams-core/internal/audit"
	"github.com/dreams-grid/dreams-core/internal/dnp3"
)

// recordTimeout bounds one write to a record sink.
const recordTimeout = 5 * time.Second

// DispatchRecord describes one command handed to the master.
type DispatchRecord struct {
	Op        string
	Kind      dnp3.Kind
	PlantNo   string
	GatewayID string
	Args      []string
	Outcome   string
	Err       error
	Lines     int
	Duration  time.Duration
	At        time.Time
}

// Recorder receives every dispatch outcome. Implementations must not block
// for long and must not fail the operation.
type Recorder interface {
	Record(ctx context.Context, rec DispatchRecord)
}

// PointWriter is the subset of the InfluxDB client used for recording.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// InfluxRecorder writes one dnp3_dispatch point per dispatch.
type InfluxRecorder struct {
	writer PointWriter
}

// NewInfluxRecorder creates a recorder over writer.
func NewInfluxRecorder(writer PointWriter) *InfluxRecorder {
	return &InfluxRecorder{writer: writer}
}

// Record implements Recorder.
func (r *InfluxRecorder) Record(_ context.Context, rec DispatchRecord) {
	r.writer.WritePoint("dnp3_dispatch",
		map[string]string{
			"op":         rec.Op,
			"kind":       string(rec.Kind),
			"outcome":    rec.Outcome,
			"plant_no":   rec.PlantNo,
			"gateway_id": rec.GatewayID,
		},
		map[string]any{
			"duration_ms": rec.Duration.Milliseconds(),
			"lines":       int64(rec.Lines),
		},
		rec.At,
	)
}

// CommandLog is the subset of the audit repository used for recording.
type CommandLog interface {
	Create(ctx context.Context, e *audit.Entry) error
}

// LogRecorder appends every dispatch to the command log.
type LogRecorder struct {
	log    CommandLog
	logger Logger
}

// NewLogRecorder creates a recorder over log.
func NewLogRecorder(log CommandLog) *LogRecorder {
	return &LogRecorder{log: log, logger: noopLogger{}}
}

// SetLogger sets the logger used for failed writes.
func (r *LogRecorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Record implements Recorder. The write outlives a cancelled request.
func (r *LogRecorder) Record(ctx context.Context, rec DispatchRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	entry := &audit.Entry{
		Kind:       string(rec.Kind),
		PlantNo:    rec.PlantNo,
		GatewayID:  rec.GatewayID,
		Args:       rec.Args,
		Outcome:    rec.Outcome,
		DurationMS: rec.Duration.Milliseconds(),
		CreatedAt:  rec.At.UTC(),
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	}

	if err := r.log.Create(ctx, entry); err != nil {
		r.logger.Error("failed to write command log", "plant_no", rec.PlantNo, "outcome", rec.Outcome, "error", err)
	}
}
