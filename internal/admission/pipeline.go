// Package admission validates inbound events against time, user
// existence, capability bits, and signatures before anything becomes
// durable. Every outcome is a structured numeric status; fan-out to
// live subscribers happens synchronously with the store write.
package admission

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/files"
	"github.com/riscvbooks/eventrelay/internal/keys"
	"github.com/riscvbooks/eventrelay/internal/permission"
	"github.com/riscvbooks/eventrelay/internal/telemetry"
	"github.com/riscvbooks/eventrelay/internal/users"
)

const defaultTolerance = 5 * time.Minute

var noOpLogger = zap.NewNop()

// Fanout receives every admitted event for delivery to matched
// subscriptions. Publish must not block on slow consumers.
type Fanout interface {
	Publish(e *event.Event)
}

// PipelineConfig wires the pipeline's collaborators.
type PipelineConfig struct {
	Events      event.Store
	Permissions *permission.Store
	Users       *users.Store
	Files       files.Storage
	Fanout      Fanout
	AdminPubkey string
	DefaultMask permission.Mask
	Tolerance   time.Duration
	Clock       func() time.Time
	Logger      *zap.Logger
	Metrics     *telemetry.Metrics
}

// Pipeline is the admission pipeline plus the read/update/delete paths
// that share its checks.
type Pipeline struct {
	events      event.Store
	perms       *permission.Store
	users       *users.Store
	files       files.Storage
	fanout      Fanout
	adminPubkey string
	defaultMask permission.Mask
	tolerance   time.Duration
	clock       func() time.Time
	logger      *zap.Logger
	metrics     *telemetry.Metrics
}

// NewPipeline validates the configuration and builds a pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Events == nil {
		return nil, errors.New("admission: event store is required")
	}
	if cfg.Permissions == nil {
		return nil, errors.New("admission: permission store is required")
	}
	if cfg.Users == nil {
		return nil, errors.New("admission: user store is required")
	}
	if cfg.AdminPubkey == "" {
		return nil, errors.New("admission: admin pubkey is required")
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	mask := cfg.DefaultMask
	if mask == 0 {
		mask = permission.DefaultUserMask
	}
	return &Pipeline{
		events:      cfg.Events,
		perms:       cfg.Permissions,
		users:       cfg.Users,
		files:       cfg.Files,
		fanout:      cfg.Fanout,
		adminPubkey: cfg.AdminPubkey,
		defaultMask: mask,
		tolerance:   tolerance,
		clock:       clock,
		logger:      logger,
		metrics:     cfg.Metrics,
	}, nil
}

// IsAdmin reports whether the pubkey is the distinguished admin key.
func (p *Pipeline) IsAdmin(pubkey string) bool {
	return pubkey == p.adminPubkey
}

// AdmitEvent runs the full admission pipeline for an event-domain
// create: temporal check, user existence, capability, signature,
// replaceable-event resolution, then persist and fan out.
func (p *Pipeline) AdmitEvent(ctx context.Context, e *event.Event) (*event.Event, *Error) {
	const op = "admission.event_create"
	if admErr := p.admitChecks(ctx, op, e, permission.CapCreateEvents); admErr != nil {
		return nil, admErr
	}

	if value, ok := e.Tags.First(event.ReplaceableTagKey); ok {
		spec := event.DeleteSpec{User: e.User, Tag: event.NewTag(event.ReplaceableTagKey, value)}
		removed, err := p.events.DeleteMany(ctx, spec)
		if err != nil {
			p.logError(op, "replaceable_resolution_failed", err, zap.String("event_id", e.ID))
			return nil, storageError(op, err)
		}
		if removed > 0 {
			p.logger.Info("replaceable event superseded",
				zap.String("user", e.User),
				zap.String("d", value),
				zap.Int64("removed", removed))
		}
	}

	return p.persistAndPublish(ctx, op, e)
}

// AdmitFile runs admission for a file-domain create, then hands the
// payload bytes to the file storage collaborator. Over the wire the
// signed data bag carries "name" and base64 "content"; HTTP uploads
// instead pass the bytes out of band with a signed "sha256" digest, so
// the signature always covers exactly what the client produced.
// Returns the stored name.
func (p *Pipeline) AdmitFile(ctx context.Context, e *event.Event, raw []byte) (string, *Error) {
	const op = "admission.file_create"
	if p.files == nil {
		return "", invalidError(op, "file storage is not configured")
	}
	if admErr := p.admitChecks(ctx, op, e, permission.CapUploadFiles); admErr != nil {
		return "", admErr
	}

	if raw != nil {
		digest := sha256.Sum256(raw)
		if e.DataString("sha256") != hex.EncodeToString(digest[:]) {
			return "", invalidError(op, "file digest mismatch")
		}
	} else {
		content := e.DataString("content")
		if content == "" {
			return "", invalidError(op, "missing file content")
		}
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return "", invalidError(op, "file content is not valid base64")
		}
		raw = decoded
	}

	storedName, err := p.files.Store(raw, e.DataString("name"))
	if err != nil {
		p.logError(op, "file_store_failed", err, zap.String("event_id", e.ID))
		return "", storageError(op, err)
	}

	// The durable event references the stored name, not the bytes.
	record := *e
	record.Data = map[string]any{"name": storedName}
	if _, admErr := p.persistAndPublish(ctx, op, &record); admErr != nil {
		if err := p.files.Remove(storedName); err != nil {
			p.logError(op, "orphan_cleanup_failed", err, zap.String("file", storedName))
		}
		return "", admErr
	}
	return storedName, nil
}

// admitChecks runs the ordered, short-circuiting validation steps
// shared by all admitted creates.
func (p *Pipeline) admitChecks(ctx context.Context, op string, e *event.Event, capability permission.Mask) *Error {
	if e.ID == "" || e.User == "" {
		return invalidError(op, "missing id or user")
	}

	now := p.clock()
	drift := now.UnixMilli() - e.CreatedAt
	if drift < 0 {
		drift = -drift
	}
	if drift > p.tolerance.Milliseconds() {
		return temporalError(op)
	}

	mask, err := p.perms.Get(ctx, e.User)
	if errors.Is(err, permission.ErrNotFound) {
		return unknownUserError(op, e.User)
	}
	if err != nil {
		p.logError(op, "permission_lookup_failed", err, zap.String("user", e.User))
		return storageError(op, err)
	}

	if !p.IsAdmin(e.User) && !mask.Has(capability) {
		return permissionError(op)
	}

	if !keys.Verify(e, e.User) {
		return signatureError(op)
	}
	return nil
}

func (p *Pipeline) persistAndPublish(ctx context.Context, op string, e *event.Event) (*event.Event, *Error) {
	e.ServerTimestamp = p.clock().UTC()
	e.Status = event.StatusActive

	if err := p.events.Insert(ctx, e); err != nil {
		p.logError(op, "insert_failed", err, zap.String("event_id", e.ID))
		return nil, storageError(op, err)
	}
	p.metrics.RecordAdmission()

	if p.fanout != nil {
		p.fanout.Publish(e)
	}
	return e, nil
}

func (p *Pipeline) logError(op, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", op),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	p.logger.Error("admission pipeline error", attrs...)
}
