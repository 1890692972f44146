package permission

// Mask is the per-user capability bitmask. Each bit grants one action;
// the admin public key bypasses mask checks entirely.
type Mask int64

const (
	// CapCreateEvents permits event-domain creates.
	CapCreateEvents Mask = 1 << iota
	// CapManageEvents permits moderating events authored by others.
	CapManageEvents
	// CapManageUsers permits moderating user profiles.
	CapManageUsers
	// CapManagePermissions permits reading and assigning capability masks.
	CapManagePermissions
	// CapReadOwnEvents permits querying the caller's own events.
	CapReadOwnEvents
	// CapReadPublicEvents permits querying active events of any author.
	CapReadPublicEvents
	// CapUploadFiles permits file-domain creates.
	CapUploadFiles
)

// DefaultUserMask is the capability set seeded for newly created users
// when no override is configured.
const DefaultUserMask = CapCreateEvents | CapReadOwnEvents | CapReadPublicEvents

// Has reports whether every bit of the capability is set.
func (m Mask) Has(capability Mask) bool {
	return m&capability == capability
}

// With returns the mask with the capability bits added.
func (m Mask) With(capability Mask) Mask {
	return m | capability
}

// Without returns the mask with the capability bits cleared.
func (m Mask) Without(capability Mask) Mask {
	return m &^ capability
}
