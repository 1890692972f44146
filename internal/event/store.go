package event

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Sort orders historical query results.
type Sort string

const (
	// SortServerTimeDesc returns the most recently admitted events first.
	SortServerTimeDesc Sort = "servertimestamp DESC"
	// SortCreatedAtDesc returns the most recently authored events first.
	SortCreatedAtDesc Sort = "created_at DESC"
)

// DeleteSpec selects the active events superseded by a replaceable
// event: same author, same replaceable tag pair.
type DeleteSpec struct {
	User string
	Tag  Tag
}

// Store is the durable storage adapter consumed by the admission
// pipeline and the protocol dispatcher.
type Store interface {
	Insert(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	FindByFilter(ctx context.Context, f Filter, limit, offset int, sort Sort) ([]Event, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, spec DeleteSpec) (int64, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	Replace(ctx context.Context, id string, data map[string]any, tags Tags, stamped time.Time) error
	Count(ctx context.Context, f Filter) (int64, error)
}

// SQLStore implements Store on the relational schema.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps a database handle as an event store.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Insert persists a new event row. The id is the primary key, so a
// duplicate insert surfaces as a storage error.
func (s *SQLStore) Insert(ctx context.Context, e *Event) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// GetByID loads one event by id.
func (s *SQLStore) GetByID(ctx context.Context, id string) (*Event, error) {
	var e Event
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindByFilter runs a historical query. User, code, status, and event id
// narrow in SQL; tag containment is applied afterwards because tags are
// stored as a JSON document. A code that sits on a domain boundary
// (multiple of 100) selects the whole domain, otherwise it is exact.
func (s *SQLStore) FindByFilter(ctx context.Context, f Filter, limit, offset int, sort Sort) ([]Event, error) {
	query := s.applyFilter(s.db.WithContext(ctx).Model(&Event{}), f)
	if sort == "" {
		sort = SortServerTimeDesc
	}
	query = query.Order(string(sort))
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []Event
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	matched := make([]Event, 0, len(rows))
	for _, row := range rows {
		if len(f.Tags) > 0 && !row.Tags.ContainsAll(f.Tags) {
			continue
		}
		matched = append(matched, row)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// DeleteByID removes an event row entirely.
func (s *SQLStore) DeleteByID(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Event{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMany hard-deletes every active event selected by the spec and
// returns how many rows were removed.
func (s *SQLStore) DeleteMany(ctx context.Context, spec DeleteSpec) (int64, error) {
	var rows []Event
	err := s.db.WithContext(ctx).
		Where("user = ? AND status = ?", spec.User, StatusActive).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, row := range rows {
		value, ok := row.Tags.First(spec.Tag.Key())
		if !ok || value != spec.Tag.Value() {
			continue
		}
		result := s.db.WithContext(ctx).Where("id = ?", row.ID).Delete(&Event{})
		if result.Error != nil {
			return removed, result.Error
		}
		removed += result.RowsAffected
	}
	return removed, nil
}

// UpdateStatus flips the soft-delete marker on one event.
func (s *SQLStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	result := s.db.WithContext(ctx).Model(&Event{}).
		Where("id = ?", id).
		Update("status", int(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Replace swaps the payload and tags of a stored event and restamps its
// server timestamp.
func (s *SQLStore) Replace(ctx context.Context, id string, data map[string]any, tags Tags, stamped time.Time) error {
	var e Event
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	e.Data = data
	e.Tags = tags
	e.ServerTimestamp = stamped
	return s.db.WithContext(ctx).Save(&e).Error
}

// Count reports how many stored events satisfy the filter.
func (s *SQLStore) Count(ctx context.Context, f Filter) (int64, error) {
	if len(f.Tags) > 0 {
		rows, err := s.FindByFilter(ctx, f, 0, 0, SortServerTimeDesc)
		if err != nil {
			return 0, err
		}
		return int64(len(rows)), nil
	}
	var total int64
	err := s.applyFilter(s.db.WithContext(ctx).Model(&Event{}), f).Count(&total).Error
	return total, err
}

func (s *SQLStore) applyFilter(query *gorm.DB, f Filter) *gorm.DB {
	if f.User != "" {
		query = query.Where("user = ?", f.User)
	}
	if f.EventID != "" {
		query = query.Where("id = ?", f.EventID)
	}
	if f.Code != nil {
		if *f.Code%100 == 0 {
			query = query.Where("code >= ? AND code < ?", *f.Code, *f.Code+100)
		} else {
			query = query.Where("code = ?", *f.Code)
		}
	}
	if f.Status != nil {
		query = query.Where("status = ?", int(*f.Status))
	}
	return query
}
