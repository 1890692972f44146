package users

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates that no profile exists for a pubkey.
	ErrNotFound = errors.New("users: not found")
	// ErrPubkeyTaken indicates that the pubkey is already registered.
	ErrPubkeyTaken = errors.New("users: pubkey already registered")
	// ErrEmailTaken indicates that the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
)

// Store persists user profiles.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a database handle as a user store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create registers a new pubkey/email binding. Both must be unused; the
// checks run inside one transaction so concurrent creates cannot race
// past each other.
func (s *Store) Create(ctx context.Context, pubkey, email string) (*User, error) {
	user := User{
		Pubkey: normalize(pubkey),
		Email:  normalize(email),
		Status: StatusActive,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing User
		err := tx.Where("pubkey = ?", user.Pubkey).Take(&existing).Error
		if err == nil {
			return ErrPubkeyTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = tx.Where("email = ?", user.Email).Take(&existing).Error
		if err == nil {
			return ErrEmailTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByPubkey loads one profile by its public key.
func (s *Store) GetByPubkey(ctx context.Context, pubkey string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("pubkey = ?", normalize(pubkey)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail loads one profile by its registered email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalize(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Find lists profiles, newest first.
func (s *Store) Find(ctx context.Context, limit int) ([]User, error) {
	query := s.db.WithContext(ctx).Model(&User{}).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []User
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Update applies profile field changes. The pubkey and email bindings
// are immutable, so those keys are ignored when present.
func (s *Store) Update(ctx context.Context, pubkey string, updates map[string]any) (*User, error) {
	delete(updates, "pubkey")
	delete(updates, "email")
	if len(updates) == 0 {
		return s.GetByPubkey(ctx, pubkey)
	}

	allowed := map[string]any{}
	if status, ok := updates["status"].(string); ok {
		allowed["status"] = status
	}
	if len(allowed) > 0 {
		result := s.db.WithContext(ctx).Model(&User{}).
			Where("pubkey = ?", normalize(pubkey)).
			Updates(allowed)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetByPubkey(ctx, pubkey)
}

// SoftDelete marks a profile deleted without releasing its bindings.
func (s *Store) SoftDelete(ctx context.Context, pubkey string) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("pubkey = ?", normalize(pubkey)).
		Update("status", StatusDeleted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
