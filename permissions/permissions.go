// Package permissions centralises the capability check every mutating
// operation performs before touching the store.
package permissions

import (
	"slices"

	"f0oster/lineage/apperrors"

	"github.com/google/uuid"
)

type Permission string

const (
	CanCreateModule              Permission = "can_create_module"
	CanEditModule                Permission = "can_edit_module"
	CanActivateModule            Permission = "can_activate_module"
	CanPatchModuleStatus         Permission = "can_patch_module_status"
	CanCloseModule               Permission = "can_close_module"
	CanCompleteModule            Permission = "can_complete_module"
	CanAddExistingObjectToModule Permission = "can_add_existing_object_to_module"
	CanAddNewObjectToModule      Permission = "can_add_new_object_to_module"
	CanPatchObjectInModule       Permission = "can_patch_object_in_module"
	CanRemoveObjectFromModule    Permission = "can_remove_object_from_module"
	CanEditModuleObjectContext   Permission = "can_edit_module_object_context"
	CanEditAcknowledgedRelation  Permission = "can_edit_acknowledged_relation"
)

// Actor is the caller identity handed in by the endpoint layer.
type Actor struct {
	UUID uuid.UUID
	Role string
}

// System acts on behalf of the service itself, e.g. from the CLI.
var System = Actor{UUID: uuid.Nil, Role: RoleSuperuser}

// Checker evaluates permissions against a Policy.
type Checker struct {
	policy Policy
}

func NewChecker(policy Policy) *Checker {
	return &Checker{policy: policy}
}

// Guard passes when the actor is whitelisted or its role grants permission.
func (c *Checker) Guard(permission Permission, actor Actor, whitelist ...uuid.UUID) error {
	if actor.UUID != uuid.Nil && slices.Contains(whitelist, actor.UUID) {
		return nil
	}
	if c.policy.Grants(actor.Role, permission) {
		return nil
	}
	return apperrors.PermissionDenied("%s is not allowed to %s", actor.UUID, permission)
}

// GuardWhitelist passes only for whitelisted actors.
func (c *Checker) GuardWhitelist(actor Actor, whitelist ...uuid.UUID) error {
	if actor.UUID != uuid.Nil && slices.Contains(whitelist, actor.UUID) {
		return nil
	}
	return apperrors.PermissionDenied("%s is not one of the allowed users", actor.UUID)
}
