// Package identity turns an incoming request into the acting user and role
// the services authorise against.
package identity

import (
	"context"
	"net/http"
	"strings"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/permissions"

	"github.com/google/uuid"
)

const (
	DefaultUserHeader = "X-Lineage-User"
	DefaultRoleHeader = "X-Lineage-Role"
)

// Resolver identifies the actor behind a request.
type Resolver interface {
	Resolve(r *http.Request) (permissions.Actor, error)
}

func userFromHeader(r *http.Request, header string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(header))
	if raw == "" {
		return uuid.Nil, apperrors.PermissionDenied("missing %s header", header)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperrors.PermissionDenied("invalid %s header", header)
	}
	return id, nil
}

// HeaderResolver trusts an authenticating proxy in front of the service to
// set both the user and the role header.
type HeaderResolver struct {
	UserHeader string
	RoleHeader string
}

func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{UserHeader: DefaultUserHeader, RoleHeader: DefaultRoleHeader}
}

func (h *HeaderResolver) Resolve(r *http.Request) (permissions.Actor, error) {
	id, err := userFromHeader(r, h.UserHeader)
	if err != nil {
		return permissions.Actor{}, err
	}
	return permissions.Actor{UUID: id, Role: strings.TrimSpace(r.Header.Get(h.RoleHeader))}, nil
}

// RoleLookup finds the role of a user.
type RoleLookup interface {
	RoleFor(ctx context.Context, user uuid.UUID) (string, error)
}

// DirectoryResolver takes the user from a header and the role from a
// directory, ignoring any role the client claims.
type DirectoryResolver struct {
	UserHeader string
	Roles      RoleLookup
}

func NewDirectoryResolver(roles RoleLookup) *DirectoryResolver {
	return &DirectoryResolver{UserHeader: DefaultUserHeader, Roles: roles}
}

func (d *DirectoryResolver) Resolve(r *http.Request) (permissions.Actor, error) {
	id, err := userFromHeader(r, d.UserHeader)
	if err != nil {
		return permissions.Actor{}, err
	}
	role, err := d.Roles.RoleFor(r.Context(), id)
	if err != nil {
		return permissions.Actor{}, err
	}
	return permissions.Actor{UUID: id, Role: role}, nil
}
