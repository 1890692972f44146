package permission

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates that no capability record exists for a pubkey.
var ErrNotFound = errors.New("permission: record not found")

// Record maps a public key to its capability bitmask.
type Record struct {
	Pubkey      string    `gorm:"column:pubkey;primaryKey;size:64;not null"`
	Permissions int64     `gorm:"column:permissions;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "permissions"
}

// Mask returns the record's capability bits.
func (r Record) Mask() Mask {
	return Mask(r.Permissions)
}

// Store persists capability records. The pipeline treats it as
// synchronous and authoritative; lookups are never cached.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a database handle as a permission store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the capability mask for a pubkey, or ErrNotFound when the
// pubkey has never been granted one.
func (s *Store) Get(ctx context.Context, pubkey string) (Mask, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("pubkey = ?", pubkey).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return record.Mask(), nil
}

// Set creates or replaces the capability mask for a pubkey.
func (s *Store) Set(ctx context.Context, pubkey string, mask Mask) error {
	record := Record{Pubkey: pubkey, Permissions: int64(mask)}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pubkey"}},
			DoUpdates: clause.AssignmentColumns([]string{"permissions", "updated_at"}),
		}).
		Create(&record).Error
}

// Delete removes the capability record for a pubkey.
func (s *Store) Delete(ctx context.Context, pubkey string) error {
	result := s.db.WithContext(ctx).Where("pubkey = ?", pubkey).Delete(&Record{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every capability record, optionally narrowed to one pubkey.
func (s *Store) List(ctx context.Context, pubkey string) ([]Record, error) {
	query := s.db.WithContext(ctx).Model(&Record{})
	if pubkey != "" {
		query = query.Where("pubkey = ?", pubkey)
	}
	var records []Record
	if err := query.Order("pubkey ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SetAll assigns masks in bulk, used by administrative bootstrap.
func (s *Store) SetAll(ctx context.Context, masks map[string]Mask) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for pubkey, mask := range masks {
			record := Record{Pubkey: pubkey, Permissions: int64(mask)}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "pubkey"}},
				DoUpdates: clause.AssignmentColumns([]string{"permissions", "updated_at"}),
			}).Create(&record).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
