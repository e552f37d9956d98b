// Package storage defines the transactional contract the lineage services
// run against. Two implementations exist: database (PostgreSQL) and
// storage/memstore.
package storage

import (
	"context"
	"time"

	"f0oster/lineage/lineage"
	"f0oster/lineage/models"

	"github.com/google/uuid"
)

// Store runs units of work. RunInTx commits when fn returns nil and rolls
// back otherwise. View runs fn without write intent.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// VersionQuery selects main timeline rows for resolution. Exactly one of
// Code and ObjectType is set.
type VersionQuery struct {
	Code       string
	ObjectType string
	At         time.Time
	Mode       lineage.Mode
}

// DraftQuery selects module draft rows for resolution. A zero ModuleID spans
// every module and partitions by (module, code); otherwise rows partition by
// code within the module. An empty Code spans every lineage.
type DraftQuery struct {
	ModuleID int64
	Code     string
	At       time.Time
	Mode     lineage.Mode
}

// ModuleFilter narrows ListModules.
type ModuleFilter struct {
	OnlyActive bool
	IDs        []int64
}

// Tx is one unit of work. Lookups of a missing row return an
// apperrors.ErrNotFound error.
type Tx interface {
	// Object statics.
	GetStatic(ctx context.Context, code string) (models.ObjectStatic, error)
	LockStatic(ctx context.Context, code string) (models.ObjectStatic, error)
	InsertStatic(ctx context.Context, static models.ObjectStatic) error
	UpdateCachedTitle(ctx context.Context, code, title string) error
	// NextObjectID allocates the next id of a type. Concurrent allocations
	// for one type are serialised until the transaction ends.
	NextObjectID(ctx context.Context, objectType string) (int64, error)

	// Main timeline.
	InsertVersion(ctx context.Context, v models.ObjectVersion) error
	GetVersion(ctx context.Context, id uuid.UUID) (models.ObjectVersion, error)
	ListVersions(ctx context.Context, code string) ([]models.ObjectVersion, error)
	ResolveVersions(ctx context.Context, q VersionQuery) ([]models.ObjectVersion, error)
	LatestModified(ctx context.Context, code string) (time.Time, error)

	// Modules and their status log.
	InsertModule(ctx context.Context, m models.Module) (int64, error)
	GetModule(ctx context.Context, moduleID int64) (models.Module, error)
	LockModule(ctx context.Context, moduleID int64) (models.Module, error)
	UpdateModule(ctx context.Context, m models.Module) error
	ListModules(ctx context.Context, filter ModuleFilter) ([]models.Module, error)
	InsertModuleStatus(ctx context.Context, st models.ModuleStatus) (int64, error)
	ListModuleStatuses(ctx context.Context, moduleID int64) ([]models.ModuleStatus, error)

	// Module contexts.
	GetContext(ctx context.Context, moduleID int64, code string) (models.ModuleObjectContext, error)
	LockContext(ctx context.Context, moduleID int64, code string) (models.ModuleObjectContext, error)
	InsertContext(ctx context.Context, c models.ModuleObjectContext) error
	UpdateContext(ctx context.Context, c models.ModuleObjectContext) error
	ListContexts(ctx context.Context, moduleID int64, includeHidden bool) ([]models.ModuleObjectContext, error)

	// Module drafts.
	InsertDraft(ctx context.Context, d models.ModuleObjectVersion) error
	ResolveDrafts(ctx context.Context, q DraftQuery) ([]models.ModuleObjectVersion, error)
	ListDrafts(ctx context.Context, moduleID int64, code string) ([]models.ModuleObjectVersion, error)
	LatestDraftModified(ctx context.Context, moduleID int64, code string) (time.Time, error)

	// Acknowledged relations. Codes are passed in canonical order.
	LockRelationPair(ctx context.Context, fromCode, toCode string) error
	GetRelation(ctx context.Context, fromCode, toCode string) (models.AcknowledgedRelation, error)
	InsertRelation(ctx context.Context, r models.AcknowledgedRelation) error
	UpdateRelation(ctx context.Context, r models.AcknowledgedRelation) error
	ListRelations(ctx context.Context, code string) ([]models.AcknowledgedRelation, error)
}
