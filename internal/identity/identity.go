package identity

import (
	"context"
	"strings"
)

// Role mirrors the app_role enum stored in user_roles.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole returns the role and whether it is a known value.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Principal is the authenticated caller, resolved once per request.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}

func (p Principal) IsDoctor() bool { return p.Role == RoleDoctor }
func (p Principal) IsAdmin() bool  { return p.Role == RoleAdmin }

type ctxKey string

const principalKey ctxKey = "doorstep.principal"

// WithPrincipal stores the caller in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the caller if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != ""
}
