// Package modules implements the module workspace and its lifecycle: drafting
// object versions in isolation and merging them into the main timeline.
package modules

import (
	"context"
	"slices"
	"time"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/events"
	"f0oster/lineage/logging"
	"f0oster/lineage/models"
	"f0oster/lineage/permissions"
	"f0oster/lineage/storage"
	"f0oster/lineage/versioning"

	"go.uber.org/zap"
)

// Options configures a Service.
type Options struct {
	// AllowedObjectTypes limits AddNewObject. Empty allows every type.
	AllowedObjectTypes []string
	// Now overrides the clock.
	Now func() time.Time
}

type Service struct {
	store     storage.Store
	checker   *permissions.Checker
	merger    *versioning.Service
	publisher events.Publisher
	logger    *zap.Logger
	opts      Options
}

func NewService(
	store storage.Store,
	checker *permissions.Checker,
	merger *versioning.Service,
	publisher events.Publisher,
	logger *zap.Logger,
	opts Options,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		store:     store,
		checker:   checker,
		merger:    merger,
		publisher: publisher,
		logger:    logging.OrNop(logger),
		opts:      opts,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

func (s *Service) objectTypeAllowed(objectType string) bool {
	if len(s.opts.AllowedObjectTypes) == 0 {
		return objectType != ""
	}
	return slices.Contains(s.opts.AllowedObjectTypes, objectType)
}

// openModule locks the module row and fails unless it is still open.
func openModule(ctx context.Context, tx storage.Tx, moduleID int64) (models.Module, error) {
	module, err := tx.LockModule(ctx, moduleID)
	if err != nil {
		return models.Module{}, err
	}
	if module.Closed {
		return models.Module{}, apperrors.InvalidState("module %d is closed", moduleID)
	}
	return module, nil
}

// editableModule additionally rejects modules locked for a status change.
func editableModule(ctx context.Context, tx storage.Tx, moduleID int64) (models.Module, error) {
	module, err := openModule(ctx, tx, moduleID)
	if err != nil {
		return models.Module{}, err
	}
	if module.TemporaryLocked {
		return models.Module{}, apperrors.InvalidState("module %d is locked", moduleID)
	}
	return module, nil
}

// liveContext locks the context of code and fails when it is absent or hidden.
func liveContext(ctx context.Context, tx storage.Tx, moduleID int64, code string) (models.ModuleObjectContext, error) {
	objectContext, err := tx.LockContext(ctx, moduleID, code)
	if err != nil {
		return models.ModuleObjectContext{}, err
	}
	if objectContext.Hidden {
		return models.ModuleObjectContext{}, apperrors.NotFound("object %s is not part of module %d", code, moduleID)
	}
	return objectContext, nil
}

func (s *Service) notify(ctx context.Context, evt events.Event) {
	events.Notify(ctx, s.publisher, s.logger, evt)
}
