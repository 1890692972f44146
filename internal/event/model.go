package event

import (
	"errors"
	"time"
)

// Ops enumerates the four wire operations.
type Ops string

const (
	// OpsCreate submits a new record.
	OpsCreate Ops = "C"
	// OpsRead queries stored records and may open a live subscription.
	OpsRead Ops = "R"
	// OpsUpdate modifies an existing record.
	OpsUpdate Ops = "U"
	// OpsDelete removes an existing record.
	OpsDelete Ops = "D"
)

// Valid reports whether the value is one of the four known operations.
func (o Ops) Valid() bool {
	switch o {
	case OpsCreate, OpsRead, OpsUpdate, OpsDelete:
		return true
	}
	return false
}

// Status marks whether an event is visible or soft-deleted.
type Status int

const (
	// StatusActive is the default visible state.
	StatusActive Status = 0
	// StatusDeleted marks an event soft-deleted by the admin.
	StatusDeleted Status = 1
)

// Domain boundaries of the code space. The exact action of a request is
// the pair (ops, code).
const (
	DomainUser       = 100
	DomainEvent      = 200
	DomainPermission = 300
	DomainFile       = 400
	domainUpper      = 500
)

// Request codes within their domains.
const (
	CodeUserCreate       = 100
	CodeUserUpdate       = 101
	CodeUserDelete       = 102
	CodeUserQuery        = 103
	CodeEventCreate      = 200
	CodeEventUpdate      = 201
	CodeEventDelete      = 202
	CodeEventQuery       = 203
	CodePermissionAssign = 300
	CodePermissionQuery  = 303
	CodeFileCreate       = 400
)

// Domain returns the lower bound of the domain the code belongs to, or
// -1 when the code is outside the partitioned space.
func Domain(code int) int {
	if code < DomainUser || code >= domainUpper {
		return -1
	}
	return code - code%100
}

// ReplaceableTagKey marks an event as replaceable: admitting a new event
// carrying this tag supersedes prior active events from the same author
// with the same tag value.
const ReplaceableTagKey = "d"

// ErrNotFound indicates that no stored event matched the requested id.
var ErrNotFound = errors.New("event: not found")

// Event is the unit of state change, signed by its author.
type Event struct {
	ID              string         `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	User            string         `gorm:"column:user;size:64;not null;index:idx_events_user" json:"user"`
	Ops             Ops            `gorm:"column:ops;size:1;not null" json:"ops"`
	Code            int            `gorm:"column:code;not null;index:idx_events_code" json:"code"`
	Data            map[string]any `gorm:"column:data;serializer:json" json:"data"`
	Tags            Tags           `gorm:"column:tags;serializer:json" json:"tags"`
	CreatedAt       int64          `gorm:"column:created_at;not null" json:"created_at"`
	ServerTimestamp time.Time      `gorm:"column:servertimestamp;index:idx_events_servertime" json:"servertimestamp"`
	Sig             string         `gorm:"column:sig;type:text" json:"sig"`
	Status          Status         `gorm:"column:status;not null;default:0;index:idx_events_status" json:"status"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "events"
}

// DataString returns the named data field when it is a string.
func (e *Event) DataString(key string) string {
	if e.Data == nil {
		return ""
	}
	value, ok := e.Data[key].(string)
	if !ok {
		return ""
	}
	return value
}
