package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dreams-grid/dreams-core/internal/dnp3"
	"github.com/dreams-grid/dreams-core/internal/master"
	"github.com/dreams-grid/dreams-core/internal/plant"
)

// Operation names, used in logs and records.
const (
	OpPlantMeterNo  = "plant_meter_no"
	OpIntegrityPoll = "integrity_poll"
	OpPowerControl  = "power_control"
	OpSetDeadband   = "set_deadband"
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher runs an encoded command on the master.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd dnp3.Command) ([]string, error)
}

// Config holds control policy.
type Config struct {
	// PollRetries is how many extra attempts an integrity poll gets after an
	// uncertain or undispatched outcome.
	PollRetries int
}

// Result is the decoded master output of one operation.
type Result struct {
	PlantNo string   `json:"plant_no"`
	Output  []string `json:"output"`
}

// Service implements the control operations.
type Service struct {
	registry   plant.Registry
	encoder    *dnp3.Encoder
	dispatcher Dispatcher
	cfg        Config
	recorders  []Recorder
	logger     Logger
}

// NewService creates a control service.
func NewService(registry plant.Registry, encoder *dnp3.Encoder, dispatcher Dispatcher, cfg Config) *Service {
	if cfg.PollRetries < 0 {
		cfg.PollRetries = 0
	}
	return &Service{
		registry:   registry,
		encoder:    encoder,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// AddRecorder registers a sink for dispatch outcomes. Not safe to call once
// operations are running.
func (s *Service) AddRecorder(r Recorder) {
	if r != nil {
		s.recorders = append(s.recorders, r)
	}
}

// PlantMeterNo lists the plants sharing plantNo's gateway. The gateway must
// be visible under token; otherwise the result is plant.ErrNotFound.
func (s *Service) PlantMeterNo(ctx context.Context, plantNo, token string) ([]plant.MeterEntry, error) {
	p, err := s.registry.FindPlant(ctx, plantNo)
	if err != nil {
		return nil, fmt.Errorf("plant %s: %w", plantNo, err)
	}

	g, err := s.registry.FindGatewayForToken(ctx, p.GatewayID, token)
	if err != nil {
		return nil, fmt.Errorf("gateway of plant %s: %w", plantNo, err)
	}

	plants, err := s.registry.ListByGateway(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("listing plants on %s: %w", g.ID, err)
	}

	meters := make([]plant.MeterEntry, 0, len(plants))
	for _, other := range plants {
		meters = append(meters, plant.MeterEntry{
			PlantName:   other.Name,
			PlantNo:     other.PlantNo,
			DNP3Address: other.DNP3Address,
		})
	}
	return meters, nil
}

// IntegrityPoll asks the master to read all points of a plant.
func (s *Service) IntegrityPoll(ctx context.Context, plantNo string) (*Result, error) {
	p, g, err := s.resolve(ctx, plantNo)
	if err != nil {
		return nil, err
	}
	cmd := s.encoder.EncodePoll(targetOf(p, g))

	attempts := 1 + s.cfg.PollRetries
	for attempt := 1; ; attempt++ {
		lines, err := s.dispatch(ctx, OpIntegrityPoll, p, cmd)
		if err == nil {
			return &Result{PlantNo: p.PlantNo, Output: lines}, nil
		}
		if attempt >= attempts || !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("retrying integrity poll", "plant_no", p.PlantNo, "attempt", attempt+1, "error", err)
	}
}

// PowerControl writes a set-point of the given type.
func (s *Service) PowerControl(ctx context.Context, plantNo, controlType string, value float64) (*Result, error) {
	p, g, err := s.resolve(ctx, plantNo)
	if err != nil {
		return nil, err
	}

	cmd, err := s.encoder.EncodePowerControl(targetOf(p, g), dnp3.ControlCommand{Type: controlType, Value: value})
	if err != nil {
		return nil, fmt.Errorf("plant %s: %w", plantNo, err)
	}

	lines, err := s.dispatch(ctx, OpPowerControl, p, cmd)
	if err != nil {
		return nil, err
	}
	return &Result{PlantNo: p.PlantNo, Output: lines}, nil
}

// SetDeadband writes the reporting threshold of one measurement. value is a
// fraction (0.025 for 2.5%). An empty category means the plant's own.
func (s *Service) SetDeadband(ctx context.Context, plantNo, field string, value float64, category string) (*Result, error) {
	if category != "" {
		if _, err := s.encoder.DeadbandIndex(category, field); err != nil {
			return nil, err
		}
	}

	p, g, err := s.resolve(ctx, plantNo)
	if err != nil {
		return nil, err
	}
	if category == "" {
		category = string(p.Category)
	} else if category != string(p.Category) {
		s.logger.Warn("deadband category differs from plant category",
			"plant_no", p.PlantNo, "category", category, "plant_category", p.Category)
	}

	cmd, err := s.encoder.EncodeDeadband(targetOf(p, g), dnp3.DeadbandSetting{Field: field, Value: value, Category: category})
	if err != nil {
		return nil, fmt.Errorf("plant %s: %w", plantNo, err)
	}

	lines, err := s.dispatch(ctx, OpSetDeadband, p, cmd)
	if err != nil {
		return nil, err
	}
	return &Result{PlantNo: p.PlantNo, Output: lines}, nil
}

// resolve finds a plant and its gateway. A dangling gateway reference is
// reported as plant.ErrNotFound.
func (s *Service) resolve(ctx context.Context, plantNo string) (*plant.Plant, *plant.Gateway, error) {
	p, err := s.registry.FindPlant(ctx, plantNo)
	if err != nil {
		return nil, nil, fmt.Errorf("plant %s: %w", plantNo, err)
	}

	g, err := s.registry.FindGateway(ctx, p.GatewayID)
	if err != nil {
		if errors.Is(err, plant.ErrGatewayNotFound) {
			return nil, nil, fmt.Errorf("%w: gateway %s of plant %s", plant.ErrNotFound, p.GatewayID, plantNo)
		}
		return nil, nil, fmt.Errorf("gateway of plant %s: %w", plantNo, err)
	}
	return p, g, nil
}

// dispatch runs cmd and records its outcome.
func (s *Service) dispatch(ctx context.Context, op string, p *plant.Plant, cmd dnp3.Command) ([]string, error) {
	start := time.Now()
	lines, err := s.dispatcher.Dispatch(ctx, cmd)
	if lines == nil {
		lines = []string{}
	}

	rec := DispatchRecord{
		Op:        op,
		Kind:      cmd.Kind,
		PlantNo:   p.PlantNo,
		GatewayID: p.GatewayID,
		Args:      cmd.Args,
		Outcome:   master.OutcomeOf(err),
		Err:       err,
		Lines:     len(lines),
		Duration:  time.Since(start),
		At:        start,
	}
	for _, r := range s.recorders {
		r.Record(ctx, rec)
	}

	if err != nil {
		s.logger.Warn("plant operation failed", "op", op, "plant_no", p.PlantNo, "outcome", rec.Outcome, "error", err)
		return nil, fmt.Errorf("%s %s: %w", op, p.PlantNo, err)
	}
	s.logger.Info("plant operation complete", "op", op, "plant_no", p.PlantNo, "lines", len(lines))
	return lines, nil
}

// retryable reports whether a poll may be repeated. Process failures are
// not retried: the master has answered.
func retryable(err error) bool {
	return errors.Is(err, master.ErrUncertainOutcome) || errors.Is(err, master.ErrNotDispatched)
}

func targetOf(p *plant.Plant, g *plant.Gateway) dnp3.Target {
	return dnp3.Target{IPAddress: g.IPAddress, Address: p.DNP3Address}
}
