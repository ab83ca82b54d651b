package auth

import (
	"fmt"
	"strings"
)

// Permission is one fine-grained capability flag.
type Permission int

const (
	PermCreateBoxes Permission = iota + 1
	PermEditBoxes
	PermDeleteBoxes
	PermCreateCollections
	PermCreateRetrievals
	PermCreateDeliveries
	PermViewReports
	PermManageUsers
)

var permissionNames = map[Permission]struct{ column, key string }{
	PermCreateBoxes:       {"can_create_boxes", "canCreateBoxes"},
	PermEditBoxes:         {"can_edit_boxes", "canEditBoxes"},
	PermDeleteBoxes:       {"can_delete_boxes", "canDeleteBoxes"},
	PermCreateCollections: {"can_create_collections", "canCreateCollections"},
	PermCreateRetrievals:  {"can_create_retrievals", "canCreateRetrievals"},
	PermCreateDeliveries:  {"can_create_deliveries", "canCreateDeliveries"},
	PermViewReports:       {"can_view_reports", "canViewReports"},
	PermManageUsers:       {"can_manage_users", "canManageUsers"},
}

// AllPermissions lists every capability in storage column order.
func AllPermissions() []Permission {
	return []Permission{
		PermCreateBoxes, PermEditBoxes, PermDeleteBoxes,
		PermCreateCollections, PermCreateRetrievals, PermCreateDeliveries,
		PermViewReports, PermManageUsers,
	}
}

func (p Permission) Valid() bool {
	_, ok := permissionNames[p]
	return ok
}

// Column is the storage column name, e.g. can_create_boxes.
func (p Permission) Column() string { return permissionNames[p].column }

func (p Permission) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Permission(%d)", int(p))
	}
	return p.Column()
}

func (p Permission) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: unknown permission", ErrInvalidInput)
	}
	return []byte(p.Column()), nil
}

func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePermission accepts either can_create_boxes or canCreateBoxes.
func ParsePermission(s string) (Permission, error) {
	s = strings.TrimSpace(s)
	for p, n := range permissionNames {
		if s == n.column || s == n.key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
}

// PermissionSet is the stored capability matrix of one user.
type PermissionSet struct {
	CreateBoxes       bool `json:"can_create_boxes"`
	EditBoxes         bool `json:"can_edit_boxes"`
	DeleteBoxes       bool `json:"can_delete_boxes"`
	CreateCollections bool `json:"can_create_collections"`
	CreateRetrievals  bool `json:"can_create_retrievals"`
	CreateDeliveries  bool `json:"can_create_deliveries"`
	ViewReports       bool `json:"can_view_reports"`
	ManageUsers       bool `json:"can_manage_users"`
}

func (s *PermissionSet) field(p Permission) *bool {
	switch p {
	case PermCreateBoxes:
		return &s.CreateBoxes
	case PermEditBoxes:
		return &s.EditBoxes
	case PermDeleteBoxes:
		return &s.DeleteBoxes
	case PermCreateCollections:
		return &s.CreateCollections
	case PermCreateRetrievals:
		return &s.CreateRetrievals
	case PermCreateDeliveries:
		return &s.CreateDeliveries
	case PermViewReports:
		return &s.ViewReports
	case PermManageUsers:
		return &s.ManageUsers
	}
	return nil
}

// Has reports whether capability p is granted. Unknown values are never granted.
func (s PermissionSet) Has(p Permission) bool {
	if f := s.field(p); f != nil {
		return *f
	}
	return false
}

func (s *PermissionSet) Set(p Permission, v bool) {
	if f := s.field(p); f != nil {
		*f = v
	}
}

// Apply overlays overrides onto s.
func (s *PermissionSet) Apply(overrides map[Permission]bool) {
	for p, v := range overrides {
		s.Set(p, v)
	}
}

// Map returns the set keyed by column name, for audit snapshots.
func (s PermissionSet) Map() map[string]any {
	out := make(map[string]any, len(permissionNames))
	for _, p := range AllPermissions() {
		out[p.Column()] = s.Has(p)
	}
	return out
}

// AllGranted returns a set with every capability true.
func AllGranted() PermissionSet {
	var s PermissionSet
	for _, p := range AllPermissions() {
		s.Set(p, true)
	}
	return s
}

// DefaultPermissions returns the template applied to new users of role.
func DefaultPermissions(role Role) PermissionSet {
	switch role {
	case RoleAdmin:
		return AllGranted()
	case RoleStaff:
		s := AllGranted()
		s.DeleteBoxes = false
		s.ManageUsers = false
		return s
	case RoleClient:
		return PermissionSet{ViewReports: true}
	}
	return PermissionSet{}
}

// EffectivePermissions is what role and stored set actually allow.
func EffectivePermissions(role Role, stored PermissionSet) PermissionSet {
	if role == RoleAdmin {
		return AllGranted()
	}
	return stored
}
