package permissions

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	RoleSuperuser              = "Superuser"
	RoleFunctioneelBeheerder   = "Functioneel beheerder"
	RoleBehandelendAmbtenaar   = "Behandelend Ambtenaar"
	RoleAmbtelijkOpdrachtgever = "Ambtelijk opdrachtgever"
)

// Policy maps a role to the permissions it grants.
type Policy struct {
	Roles map[string][]Permission `yaml:"roles"`
}

func (p Policy) Grants(role string, permission Permission) bool {
	return slices.Contains(p.Roles[role], permission)
}

func allPermissions() []Permission {
	return []Permission{
		CanCreateModule,
		CanEditModule,
		CanActivateModule,
		CanPatchModuleStatus,
		CanCloseModule,
		CanCompleteModule,
		CanAddExistingObjectToModule,
		CanAddNewObjectToModule,
		CanPatchObjectInModule,
		CanRemoveObjectFromModule,
		CanEditModuleObjectContext,
		CanEditAcknowledgedRelation,
	}
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{Roles: map[string][]Permission{
		RoleSuperuser:            allPermissions(),
		RoleFunctioneelBeheerder: allPermissions(),
		RoleBehandelendAmbtenaar: {
			CanCreateModule,
			CanAddExistingObjectToModule,
			CanAddNewObjectToModule,
			CanPatchObjectInModule,
			CanRemoveObjectFromModule,
			CanEditModuleObjectContext,
			CanEditAcknowledgedRelation,
		},
		RoleAmbtelijkOpdrachtgever: {
			CanPatchModuleStatus,
			CanCloseModule,
		},
	}}
}

// LoadPolicy reads a YAML policy file. Unknown permission names are rejected.
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw)
}

func ParsePolicy(raw []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	known := allPermissions()
	for role, perms := range p.Roles {
		for _, perm := range perms {
			if !slices.Contains(known, perm) {
				return Policy{}, fmt.Errorf("role %q: unknown permission %q", role, perm)
			}
		}
	}
	return p, nil
}
