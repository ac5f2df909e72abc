package models

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Permission is the consent state a wallet holds towards a peer address.
// Values use the lower-case wire form reported by the messaging network.
type Permission string

const (
	PermissionAllowed Permission = "allowed"
	PermissionUnknown Permission = "unknown"
	PermissionDenied  Permission = "denied"
)

// IsValid reports whether p is one of the three known permission states.
func (p Permission) IsValid() bool {
	switch p {
	case PermissionAllowed, PermissionUnknown, PermissionDenied:
		return true
	default:
		return false
	}
}

// Priority returns the sort rank of p: allowed first, then unknown, then denied.
// Invalid permissions rank after denied.
func (p Permission) Priority() int {
	switch p {
	case PermissionAllowed:
		return 0
	case PermissionUnknown:
		return 1
	case PermissionDenied:
		return 2
	default:
		return 3
	}
}

// Label returns the title-cased form used in exports, e.g. "Allowed".
func (p Permission) Label() string {
	// cases.Caser is stateful, so build one per call
	return cases.Title(language.English).String(string(p))
}

// IsSettable reports whether p can be written through the messaging client.
func (p Permission) IsSettable() bool {
	return p == PermissionAllowed || p == PermissionDenied
}

// ParsePermission converts a wire or label value into a Permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPermission, s)
	}
	return p, nil
}
