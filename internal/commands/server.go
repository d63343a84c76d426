package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dreams-grid/dreams-core/internal/control"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/mqtt"
	"github.com/dreams-grid/dreams-core/internal/plant"
)

// Request operations, the last segment of the request topic.
const (
	OpMeters   = "meters"
	OpPoll     = "poll"
	OpControl  = "control"
	OpDeadband = "deadband"
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

// Transport is the subset of the MQTT client the server needs.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Operations are the control operations served.
type Operations interface {
	PlantMeterNo(ctx context.Context, plantNo, token string) ([]plant.MeterEntry, error)
	IntegrityPoll(ctx context.Context, plantNo string) (*control.Result, error)
	PowerControl(ctx context.Context, plantNo, controlType string, value float64) (*control.Result, error)
	SetDeadband(ctx context.Context, plantNo, field string, value float64, category string) (*control.Result, error)
}

// Request is the JSON body of a request message.
type Request struct {
	RequestID     string   `json:"request_id"`
	PlantNo       string   `json:"plant_no"`
	Token         string   `json:"token,omitempty"`
	Type          string   `json:"type,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Field         string   `json:"field,omitempty"`
	PlantCategory string   `json:"plant_category,omitempty"`
}

// Response is the JSON body of a reply.
type Response struct {
	RequestID string             `json:"request_id"`
	Op        string             `json:"op"`
	OK        bool               `json:"ok"`
	Output    []string           `json:"output,omitempty"`
	Meters    []plant.MeterEntry `json:"meters,omitempty"`
	Error     *ErrorBody         `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server answers MQTT requests.
type Server struct {
	transport Transport
	ops       Operations
	qos       byte
	logger    Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	pending sync.WaitGroup
}

// NewServer creates a server. qos applies to subscriptions and replies.
func NewServer(transport Transport, ops Operations, qos byte) *Server {
	return &Server{
		transport: transport,
		ops:       ops,
		qos:       qos,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Server) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start subscribes to the request topics. Requests run under ctx.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("commands: server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.transport.Subscribe(mqtt.Topics{}.AllRequests(), s.qos, s.handleMessage); err != nil {
		return fmt.Errorf("subscribing to requests: %w", err)
	}
	s.logger.Info("serving control requests", "topic", mqtt.Topics{}.AllRequests())
	return nil
}

// Stop cancels requests still waiting, unsubscribes and waits for every
// accepted request to reply. Messages arriving after Stop begins are refused.
func (s *Server) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	if cancel == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel()
	s.mu.Unlock()

	err := s.transport.Unsubscribe(mqtt.Topics{}.AllRequests())
	s.pending.Wait()
	if err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("unsubscribing from requests: %w", err)
	}
	return nil
}

// handleMessage decodes a request and serves it in the background so the
// MQTT client keeps delivering while the master works.
func (s *Server) handleMessage(topic string, payload []byte) error {
	op := topic[strings.LastIndex(topic, "/")+1:]

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decoding %s request: %w", op, err)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
		s.logger.Warn("request without request_id", "op", op, "request_id", req.RequestID)
	}

	// Add must happen under mu so it never races the Wait in Stop.
	s.mu.Lock()
	ctx := s.ctx
	if ctx == nil || s.stopped || ctx.Err() != nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()
		s.reply(s.serve(ctx, op, req))
	}()
	return nil
}

// serve runs one request and builds its response.
func (s *Server) serve(ctx context.Context, op string, req Request) Response {
	resp := Response{RequestID: req.RequestID, Op: op}
	log := []any{"op", op, "request_id", req.RequestID, "plant_no", req.PlantNo}
	s.logger.Debug("request received", log...)

	var err error
	switch {
	case req.PlantNo == "":
		err = badRequest("plant_no is required")
	case op == OpMeters:
		if req.Token == "" {
			err = badRequest("token is required")
			break
		}
		resp.Meters, err = s.ops.PlantMeterNo(ctx, req.PlantNo, req.Token)
	case op == OpPoll:
		var res *control.Result
		if res, err = s.ops.IntegrityPoll(ctx, req.PlantNo); err == nil {
			resp.Output = res.Output
		}
	case op == OpControl:
		if req.Type == "" || req.Value == nil {
			err = badRequest("type and value are required")
			break
		}
		var res *control.Result
		if res, err = s.ops.PowerControl(ctx, req.PlantNo, req.Type, *req.Value); err == nil {
			resp.Output = res.Output
		}
	case op == OpDeadband:
		if req.Field == "" || req.Value == nil {
			err = badRequest("field and value are required")
			break
		}
		var res *control.Result
		if res, err = s.ops.SetDeadband(ctx, req.PlantNo, req.Field, *req.Value, req.PlantCategory); err == nil {
			resp.Output = res.Output
		}
	default:
		err = badRequest(fmt.Sprintf("unknown operation %q", op))
	}

	if err != nil {
		code := CodeOf(err)
		resp.Error = &ErrorBody{Code: code, Message: err.Error()}
		if code == CodeInternal || code == CodeUncertainOutcome {
			s.logger.Error("request failed", append(log, "code", code, "error", err)...)
		} else {
			s.logger.Info("request rejected", append(log, "code", code, "error", err)...)
		}
		return resp
	}

	resp.OK = true
	return resp
}

func (s *Server) reply(resp Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encoding response", "request_id", resp.RequestID, "error", err)
		return
	}
	if err := s.transport.Publish(mqtt.Topics{}.Response(resp.RequestID), body, s.qos, false); err != nil {
		s.logger.Error("publishing response", "request_id", resp.RequestID, "error", err)
	}
}
