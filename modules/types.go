package modules

import (
	"time"

	"f0oster/lineage/diff"
	"f0oster/lineage/models"
	"f0oster/lineage/versioning"

	"github.com/google/uuid"
)

type CreateModuleInput struct {
	Title              string
	Description        string
	ModuleManager1UUID uuid.UUID
	ModuleManager2UUID *uuid.UUID
}

// EditModuleInput changes only the non-nil fields.
type EditModuleInput struct {
	Title              *string
	Description        *string
	ModuleManager1UUID *uuid.UUID
	ModuleManager2UUID *uuid.UUID
	TemporaryLocked    *bool
}

type AddExistingObjectInput struct {
	Code        string
	Action      models.ObjectAction
	Explanation string
	Conclusion  string
}

type AddNewObjectInput struct {
	ObjectType   string
	Title        string
	OwnerOneUUID *uuid.UUID
	OwnerTwoUUID *uuid.UUID
	Explanation  string
	Conclusion   string
}

// EditContextInput changes only the non-nil fields.
type EditContextInput struct {
	Action      *models.ObjectAction
	Explanation *string
	Conclusion  *string
}

// CompleteResult reports the commits of a successful completion.
type CompleteResult struct {
	Module      models.Module
	CompletedAt time.Time
	Commits     []versioning.Commit
}

// Overview is the read model of one module.
type Overview struct {
	Module        models.Module
	Status        *models.ModuleStatus
	StatusHistory []models.ModuleStatus
	Contexts      []models.ModuleObjectContext
	Drafts        []models.ModuleObjectVersion
}

// ModuleSummary is one row of the module list.
type ModuleSummary struct {
	Module models.Module
	Status *models.ModuleStatus
}

// ObjectDiff compares a draft with the version it was derived from.
type ObjectDiff struct {
	Code    string
	Draft   models.ModuleObjectVersion
	Base    *models.ObjectVersion
	Changes []diff.FieldChange
}
