package relay

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/riscvbooks/eventrelay/internal/admission"
	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/telemetry"
)

// Dispatcher parses inbound frames, routes them by (ops, code), and
// frames the replies. One HandleFrame call runs to completion before
// the connection's next frame is handled, which gives each connection
// in-order processing with all side effects applied between requests.
type Dispatcher struct {
	pipeline *admission.Pipeline
	registry *Registry
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	clock    func() time.Time
}

// DispatcherConfig wires the dispatcher's collaborators.
type DispatcherConfig struct {
	Pipeline *admission.Pipeline
	Registry *Registry
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
	Clock    func() time.Time
}

// NewDispatcher builds a protocol dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		pipeline: cfg.Pipeline,
		registry: cfg.Registry,
		logger:   logger,
		metrics:  cfg.Metrics,
		clock:    clock,
	}
}

// ConnectionClosed removes every subscription the connection owned.
func (d *Dispatcher) ConnectionClosed(connID string) {
	d.registry.RemoveConnection(connID)
}

// HandleFrame processes one inbound frame. Malformed frames are logged
// and dropped without closing the connection; requests with a parseable
// request id but an unsupported (ops, code) get a structured rejection.
func (d *Dispatcher) HandleFrame(ctx context.Context, conn Sender, raw []byte) {
	d.metrics.RecordFrame()

	command, requestID, payload, err := DecodeFrame(raw)
	if err != nil {
		d.logger.Warn("dropping malformed frame",
			zap.String("connection_id", conn.ID()),
			zap.Error(err))
		return
	}

	if command == CommandUnsub {
		d.registry.Remove(conn.ID(), requestID)
		return
	}

	var e event.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		d.logger.Warn("dropping frame with undecodable payload",
			zap.String("connection_id", conn.ID()),
			zap.String("request_id", requestID),
			zap.Error(err))
		return
	}
	if !e.Ops.Valid() || e.Code == 0 {
		d.logger.Warn("dropping frame missing ops or code",
			zap.String("connection_id", conn.ID()),
			zap.String("request_id", requestID))
		return
	}

	d.route(ctx, conn, requestID, &e)
}

func (d *Dispatcher) route(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	switch e.Ops {
	case event.OpsCreate:
		switch e.Code {
		case event.CodeUserCreate:
			d.handleUserCreate(ctx, conn, requestID, e)
		case event.CodeEventCreate:
			d.handleEventCreate(ctx, conn, requestID, e)
		case event.CodePermissionAssign:
			d.handlePermissionAssign(ctx, conn, requestID, e)
		case event.CodeFileCreate:
			d.handleFileCreate(ctx, conn, requestID, e)
		default:
			d.rejectUnsupported(conn, requestID, e)
		}
	case event.OpsRead:
		switch e.Code {
		case event.CodeUserQuery:
			d.handleUserQuery(ctx, conn, requestID, e)
		case event.CodeEventQuery:
			d.handleEventQuery(ctx, conn, requestID, e)
		case event.CodePermissionQuery:
			d.handlePermissionQuery(ctx, conn, requestID, e)
		default:
			d.rejectUnsupported(conn, requestID, e)
		}
	case event.OpsUpdate:
		switch e.Code {
		case event.CodeUserUpdate:
			d.handleUserUpdate(ctx, conn, requestID, e)
		case event.CodeEventUpdate:
			d.handleEventUpdate(ctx, conn, requestID, e)
		default:
			d.rejectUnsupported(conn, requestID, e)
		}
	case event.OpsDelete:
		switch e.Code {
		case event.CodeUserDelete:
			d.handleUserDelete(ctx, conn, requestID, e)
		case event.CodeEventDelete:
			d.handleEventDelete(ctx, conn, requestID, e)
		default:
			d.rejectUnsupported(conn, requestID, e)
		}
	default:
		d.rejectUnsupported(conn, requestID, e)
	}
}

func (d *Dispatcher) handleUserCreate(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	created, admErr := d.pipeline.CreateUser(ctx, e)
	if admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	d.respond(conn, requestID, Result{
		Code:    admission.StatusOK,
		Message: "user created",
		Pubkey:  created.Pubkey,
	})
}

func (d *Dispatcher) handleEventCreate(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	admitted, admErr := d.pipeline.AdmitEvent(ctx, e)
	if admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	d.respond(conn, requestID, Result{
		Code:    admission.StatusOK,
		Message: "event created",
		EventID: admitted.ID,
	})
}

func (d *Dispatcher) handlePermissionAssign(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	if admErr := d.pipeline.AssignPermission(ctx, e); admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	d.respond(conn, requestID, Result{Code: admission.StatusOK, Message: "permissions assigned"})
}

func (d *Dispatcher) handleFileCreate(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	storedName, admErr := d.pipeline.AdmitFile(ctx, e, nil)
	if admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	d.respond(conn, requestID, Result{
		Code:    admission.StatusOK,
		Message: "file stored",
		EventID: e.ID,
		File:    storedName,
	})
}

func (d *Dispatcher) handleUserQuery(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	rows, admErr := d.pipeline.QueryUsers(ctx, e)
	if admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	for i := range rows {
		d.respond(conn, requestID, rows[i])
	}
	d.sendEOSE(conn, requestID)
}

// handleEventQuery registers the live subscription first, then streams
// the historical matches and the EOSE sentinel. The subscription stays
// live under the same request id until an UNSUB frame or disconnect.
// Count-only requests get the matching total and open no subscription.
func (d *Dispatcher) handleEventQuery(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	req, admErr := d.pipeline.BuildQuery(e)
	if admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}

	if req.CountOnly {
		total, admErr := d.pipeline.CountEvents(ctx, req)
		if admErr != nil {
			d.respondError(conn, requestID, admErr)
			return
		}
		d.respond(conn, requestID, Result{
			Code:    admission.StatusOK,
			Message: "count",
			Count:   total,
		})
		return
	}

	d.registry.Add(conn, requestID, req.Filter, d.clock().UTC())

	rows, admErr := d.pipeline.QueryEvents(ctx, req)
	if admErr != nil {
		d.registry.Remove(conn.ID(), requestID)
		d.respondError(conn, requestID, admErr)
		return
	}
	for i := range rows {
		d.respond(conn, requestID, rows[i])
	}
	d.sendEOSE(conn, requestID)
}

func (d *Dispatcher) handlePermissionQuery(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	records, admErr := d.pipeline.QueryPermissions(ctx, e)
	if admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	for i := range records {
		d.respond(conn, requestID, records[i])
	}
	d.sendEOSE(conn, requestID)
}

func (d *Dispatcher) handleUserUpdate(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	updated, admErr := d.pipeline.UpdateUser(ctx, e)
	if admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	d.respond(conn, requestID, Result{
		Code:    admission.StatusOK,
		Message: "user updated",
		Pubkey:  updated.Pubkey,
	})
}

func (d *Dispatcher) handleEventUpdate(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	updated, admErr := d.pipeline.UpdateEvent(ctx, e)
	if admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	d.respond(conn, requestID, Result{
		Code:    admission.StatusOK,
		Message: "event updated",
		EventID: updated.ID,
	})
}

func (d *Dispatcher) handleUserDelete(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	if admErr := d.pipeline.DeleteUser(ctx, e); admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	d.respond(conn, requestID, Result{Code: admission.StatusOK, Message: "user deleted"})
}

func (d *Dispatcher) handleEventDelete(ctx context.Context, conn Sender, requestID string, e *event.Event) {
	if admErr := d.pipeline.DeleteEvent(ctx, e); admErr != nil {
		d.respondError(conn, requestID, admErr)
		return
	}
	d.respond(conn, requestID, Result{Code: admission.StatusOK, Message: "event deleted"})
}

func (d *Dispatcher) rejectUnsupported(conn Sender, requestID string, e *event.Event) {
	d.metrics.RecordRejection(admission.StatusUnsupported)
	d.logger.Warn("unsupported operation",
		zap.String("connection_id", conn.ID()),
		zap.String("request_id", requestID),
		zap.String("ops", string(e.Ops)),
		zap.Int("code", e.Code))
	d.respond(conn, requestID, Result{
		Code:    admission.StatusUnsupported,
		Message: "unsupported operation",
	})
}

func (d *Dispatcher) respondError(conn Sender, requestID string, admErr *admission.Error) {
	d.metrics.RecordRejection(admErr.Code)
	d.logger.Info("request rejected",
		zap.String("connection_id", conn.ID()),
		zap.String("request_id", requestID),
		zap.Int("code", admErr.Code),
		zap.String("message", admErr.Message))
	d.respond(conn, requestID, Result{Code: admErr.Code, Message: admErr.Message})
}

func (d *Dispatcher) respond(conn Sender, requestID string, payload any) {
	frame, err := EncodeResp(requestID, payload)
	if err != nil {
		d.logger.Error("response encode failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		return
	}
	if !conn.Send(frame) {
		d.logger.Warn("response dropped",
			zap.String("connection_id", conn.ID()),
			zap.String("request_id", requestID))
	}
}

func (d *Dispatcher) sendEOSE(conn Sender, requestID string) {
	frame, err := EncodeEOSE(requestID)
	if err != nil {
		d.logger.Error("eose encode failed", zap.Error(err))
		return
	}
	if !conn.Send(frame) {
		d.logger.Warn("eose dropped",
			zap.String("connection_id", conn.ID()),
			zap.String("request_id", requestID))
	}
}
