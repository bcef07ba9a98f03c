package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the caller's capability class.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleDoctor, RolePatient, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is the authenticated caller. Engine operations take it as an
// explicit argument and make their own authorization decisions.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// IsDoctor reports whether p is the doctor with the given id.
func (p Principal) IsDoctor(id uuid.UUID) bool {
	return p.Role == RoleDoctor && p.ID == id
}

// IsPatient reports whether p is the patient with the given id.
func (p Principal) IsPatient(id uuid.UUID) bool {
	return p.Role == RolePatient && p.ID == id
}

func (p Principal) String() string {
	return fmt.Sprintf("%s:%s", p.Role, p.ID)
}

type principalKey struct{}

// WithPrincipal stores the caller on the request context. Only the HTTP layer
// reads it back; the engine receives the principal as a parameter.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
