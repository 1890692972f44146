package admission

import (
	"context"

	"go.uber.org/zap"

	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/keys"
	"github.com/riscvbooks/eventrelay/internal/permission"
)

// AssignPermission sets the capability mask named in the request's data
// bag ("pubkey", "permissions"). Only the admin key may sign it.
func (p *Pipeline) AssignPermission(ctx context.Context, e *event.Event) *Error {
	const op = "admission.permission_assign"
	if !p.IsAdmin(e.User) {
		return permissionError(op)
	}
	if !keys.Verify(e, p.adminPubkey) {
		return signatureError(op)
	}

	target := e.DataString("pubkey")
	if target == "" {
		return invalidError(op, "missing target pubkey")
	}
	mask := permission.Mask(dataInt(e.Data, "permissions", -1))
	if mask < 0 {
		return invalidError(op, "missing permissions bitmask")
	}

	if err := p.perms.Set(ctx, target, mask); err != nil {
		p.logError(op, "permission_set_failed", err, zap.String("pubkey", target))
		return storageError(op, err)
	}
	p.logger.Info("permissions assigned",
		zap.String("pubkey", target),
		zap.Int64("mask", int64(mask)))
	return nil
}

// QueryPermissions lists capability records, optionally narrowed to the
// pubkey named in the data bag. Admin-signed requests only.
func (p *Pipeline) QueryPermissions(ctx context.Context, e *event.Event) ([]permission.Record, *Error) {
	const op = "admission.permission_query"
	if !p.IsAdmin(e.User) {
		return nil, permissionError(op)
	}
	if !keys.Verify(e, p.adminPubkey) {
		return nil, signatureError(op)
	}

	records, err := p.perms.List(ctx, e.DataString("pubkey"))
	if err != nil {
		p.logError(op, "permission_list_failed", err)
		return nil, storageError(op, err)
	}
	return records, nil
}

// dataInt reads an integer field from a decoded JSON data bag, where
// numbers arrive as float64.
func dataInt(data map[string]any, key string, fallback int) int {
	if data == nil {
		return fallback
	}
	switch value := data[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	case int64:
		return int(value)
	}
	return fallback
}
