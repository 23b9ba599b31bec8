package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is the role-type half of a user identity. Patients live in this
// system; doctors and staff are CRM-backed and exist primarily in the
// external case-management system.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleStaff:
		return true
	}
	return false
}

// CRMBacked reports whether messages from this role also live in the
// external system and must be synced through the bridge.
func (r Role) CRMBacked() bool {
	return r == RoleDoctor || r == RoleStaff
}

// Ref is a (id, role-type) user identity. Ids are only unique within a
// role, so every comparison must include the role.
type Ref struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

func (r Ref) Equal(other Ref) bool {
	return r.ID == other.ID && r.Role == other.Role
}

// Key returns the canonical "role:id" form used for room names and
// registry lookups.
func (r Ref) Key() string {
	return fmt.Sprintf("%s:%d", r.Role, r.ID)
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (Ref, error) {
	role, idStr, ok := strings.Cut(key, ":")
	if !ok {
		return Ref{}, fmt.Errorf("malformed identity key %q", key)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return Ref{}, fmt.Errorf("malformed identity key %q", key)
	}
	if !Role(role).Valid() {
		return Ref{}, fmt.Errorf("unknown role in identity key %q", key)
	}
	return Ref{ID: id, Role: Role(role)}, nil
}

// PairKey returns an order-independent key for a one-to-one conversation
// between two identities. It backs the unique constraint that makes
// get-or-create race-safe.
func PairKey(a, b Ref) string {
	ka, kb := a.Key(), b.Key()
	if ka > kb {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}
