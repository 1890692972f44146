package admission

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/keys"
	"github.com/riscvbooks/eventrelay/internal/users"
)

// CreateUser registers the pubkey/email binding carried by a
// user-domain create and seeds the new user's capability mask. The
// request must be signed by its submitter; the admin may register a
// pubkey other than its own via the data "pubkey" field.
func (p *Pipeline) CreateUser(ctx context.Context, e *event.Event) (*users.User, *Error) {
	const op = "admission.user_create"
	if e.User == "" {
		return nil, invalidError(op, "missing user pubkey")
	}
	if e.Sig == "" {
		return nil, invalidError(op, "missing signature")
	}
	if err := users.ValidateCreatePayload(e.Data); err != nil {
		return nil, invalidError(op, "invalid user payload: email is required and must be well-formed")
	}

	if !keys.Verify(e, e.User) {
		return nil, signatureError(op)
	}

	target := e.User
	if requested := e.DataString("pubkey"); requested != "" && requested != e.User {
		if !p.IsAdmin(e.User) {
			return nil, permissionError(op)
		}
		target = requested
	}

	created, err := p.users.Create(ctx, target, e.DataString("email"))
	if errors.Is(err, users.ErrPubkeyTaken) {
		return nil, conflictError(op, "pubkey already registered")
	}
	if errors.Is(err, users.ErrEmailTaken) {
		return nil, conflictError(op, "email already registered")
	}
	if err != nil {
		p.logError(op, "user_insert_failed", err, zap.String("pubkey", target))
		return nil, storageError(op, err)
	}

	if err := p.perms.Set(ctx, target, p.defaultMask); err != nil {
		p.logError(op, "default_permission_seed_failed", err, zap.String("pubkey", target))
		return nil, storageError(op, err)
	}

	p.logger.Info("user created", zap.String("pubkey", target))
	return created, nil
}

// QueryUsers serves the user-domain read: one profile when the request
// names a pubkey or an email, the listing otherwise.
func (p *Pipeline) QueryUsers(ctx context.Context, e *event.Event) ([]users.User, *Error) {
	const op = "admission.user_query"
	if email := e.DataString("email"); email != "" {
		found, err := p.users.GetByEmail(ctx, email)
		if errors.Is(err, users.ErrNotFound) {
			return []users.User{}, nil
		}
		if err != nil {
			p.logError(op, "user_lookup_failed", err, zap.String("email", email))
			return nil, storageError(op, err)
		}
		return []users.User{*found}, nil
	}

	pubkey := e.DataString("pubkey")
	if pubkey == "" {
		pubkey = e.User
	}
	if pubkey != "" {
		found, err := p.users.GetByPubkey(ctx, pubkey)
		if errors.Is(err, users.ErrNotFound) {
			return []users.User{}, nil
		}
		if err != nil {
			p.logError(op, "user_lookup_failed", err, zap.String("pubkey", pubkey))
			return nil, storageError(op, err)
		}
		return []users.User{*found}, nil
	}

	limit := dataInt(e.Data, "limit", 1000)
	rows, err := p.users.Find(ctx, limit)
	if err != nil {
		p.logError(op, "user_list_failed", err)
		return nil, storageError(op, err)
	}
	return rows, nil
}

// UpdateUser applies profile changes for the signer's own profile, or
// any profile when the signer is the admin. Pubkey and email stay
// immutable regardless of who asks.
func (p *Pipeline) UpdateUser(ctx context.Context, e *event.Event) (*users.User, *Error) {
	const op = "admission.user_update"
	if !keys.Verify(e, e.User) {
		return nil, signatureError(op)
	}

	target := e.User
	if requested := e.DataString("pubkey"); requested != "" && requested != e.User {
		if !p.IsAdmin(e.User) {
			return nil, permissionError(op)
		}
		target = requested
	}

	updates := make(map[string]any, len(e.Data))
	for key, value := range e.Data {
		updates[key] = value
	}
	updated, err := p.users.Update(ctx, target, updates)
	if errors.Is(err, users.ErrNotFound) {
		return nil, notFoundError(op, "user")
	}
	if err != nil {
		p.logError(op, "user_update_failed", err, zap.String("pubkey", target))
		return nil, storageError(op, err)
	}
	return updated, nil
}

// DeleteUser marks a profile deleted. Only the profile owner or the
// admin may do so; the row is kept so the bindings stay reserved.
func (p *Pipeline) DeleteUser(ctx context.Context, e *event.Event) *Error {
	const op = "admission.user_delete"
	if !keys.Verify(e, e.User) {
		return signatureError(op)
	}

	target := e.User
	if requested := e.DataString("pubkey"); requested != "" && requested != e.User {
		if !p.IsAdmin(e.User) {
			return permissionError(op)
		}
		target = requested
	}

	err := p.users.SoftDelete(ctx, target)
	if errors.Is(err, users.ErrNotFound) {
		return notFoundError(op, "user")
	}
	if err != nil {
		p.logError(op, "user_delete_failed", err, zap.String("pubkey", target))
		return storageError(op, err)
	}
	p.logger.Info("user deleted", zap.String("pubkey", target))
	return nil
}
