package admission

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/keys"
)

// UpdateEvent replaces the payload and tags of a stored event. The
// signer must be the original author or the admin; the target id comes
// from the data bag's "eventid" field. The server timestamp is
// restamped so subscribers ordering by admission time see the change.
func (p *Pipeline) UpdateEvent(ctx context.Context, e *event.Event) (*event.Event, *Error) {
	const op = "admission.event_update"
	if !keys.Verify(e, e.User) {
		return nil, signatureError(op)
	}

	targetID := e.DataString("eventid")
	if targetID == "" {
		return nil, invalidError(op, "missing eventid")
	}

	stored, err := p.events.GetByID(ctx, targetID)
	if errors.Is(err, event.ErrNotFound) {
		return nil, notFoundError(op, "event")
	}
	if err != nil {
		p.logError(op, "event_lookup_failed", err, zap.String("event_id", targetID))
		return nil, storageError(op, err)
	}

	if e.User != stored.User && !p.IsAdmin(e.User) {
		return nil, permissionError(op)
	}

	data := make(map[string]any, len(e.Data))
	for key, value := range e.Data {
		if key == "eventid" {
			continue
		}
		data[key] = value
	}

	stamped := p.clock().UTC()
	if err := p.events.Replace(ctx, targetID, data, e.Tags, stamped); err != nil {
		p.logError(op, "event_replace_failed", err, zap.String("event_id", targetID))
		return nil, storageError(op, err)
	}

	stored.Data = data
	stored.Tags = e.Tags
	stored.ServerTimestamp = stamped
	return stored, nil
}

// DeleteEvent removes a stored event. The original author removes the
// row outright; the admin soft-deletes by flipping the status marker.
// Anyone else is refused, and a missing id is a not-found result, not a
// protocol fault.
func (p *Pipeline) DeleteEvent(ctx context.Context, e *event.Event) *Error {
	const op = "admission.event_delete"
	if !keys.Verify(e, e.User) {
		return signatureError(op)
	}

	targetID := e.DataString("eventid")
	if targetID == "" {
		targetID = e.ID
	}

	stored, err := p.events.GetByID(ctx, targetID)
	if errors.Is(err, event.ErrNotFound) {
		return notFoundError(op, "event")
	}
	if err != nil {
		p.logError(op, "event_lookup_failed", err, zap.String("event_id", targetID))
		return storageError(op, err)
	}

	switch {
	case e.User == stored.User:
		if err := p.events.DeleteByID(ctx, targetID); err != nil {
			p.logError(op, "hard_delete_failed", err, zap.String("event_id", targetID))
			return storageError(op, err)
		}
		p.logger.Info("event hard-deleted", zap.String("event_id", targetID))
	case p.IsAdmin(e.User):
		if err := p.events.UpdateStatus(ctx, targetID, event.StatusDeleted); err != nil {
			p.logError(op, "soft_delete_failed", err, zap.String("event_id", targetID))
			return storageError(op, err)
		}
		p.logger.Info("event soft-deleted", zap.String("event_id", targetID))
	default:
		return permissionError(op)
	}
	return nil
}
