package modules

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/lineage"
	"f0oster/lineage/metrics"
	"f0oster/lineage/models"
	"f0oster/lineage/permissions"
	"f0oster/lineage/snapshot"
	"f0oster/lineage/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// nextDraftModified returns the modification time for a new draft of code.
func nextDraftModified(ctx context.Context, tx storage.Tx, moduleID int64, code string, now time.Time) (time.Time, error) {
	previous, err := tx.LatestDraftModified(ctx, moduleID, code)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest draft of %s: %w", code, err)
	}
	return lineage.NextModified(now, previous), nil
}

func insertDraft(ctx context.Context, tx storage.Tx, draft models.ModuleObjectVersion) error {
	if err := tx.InsertDraft(ctx, draft); err != nil {
		return fmt.Errorf("insert draft of %s: %w", draft.Code, err)
	}
	metrics.VersionsWritten.WithLabelValues("module").Inc()
	return nil
}

// AddExistingObject brings a lineage of the main timeline into the module and
// seeds its first draft with the currently valid version.
func (s *Service) AddExistingObject(ctx context.Context, actor permissions.Actor, moduleID int64, in AddExistingObjectInput) (models.ModuleObjectContext, error) {
	if in.Action != models.ActionEdit && in.Action != models.ActionTerminate {
		return models.ModuleObjectContext{}, apperrors.InvalidInput("action must be %s or %s for an existing object", models.ActionEdit, models.ActionTerminate)
	}

	var objectContext models.ModuleObjectContext
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := editableModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanAddExistingObjectToModule, actor, module.Managers()...); err != nil {
			return err
		}

		now := s.now()
		current, err := snapshot.ResolveOne(ctx, tx, in.Code, now, lineage.Valid)
		if err != nil {
			return err
		}

		existing, err := tx.LockContext(ctx, moduleID, in.Code)
		switch {
		case err == nil && !existing.Hidden:
			return apperrors.Conflict("object %s is already part of module %d", in.Code, moduleID)
		case err != nil && !apperrors.IsNotFound(err):
			return err
		}

		objectContext = models.ModuleObjectContext{
			ModuleID:         moduleID,
			Code:             current.Code,
			ObjectType:       current.ObjectType,
			ObjectID:         current.ObjectID,
			Action:           in.Action,
			Explanation:      in.Explanation,
			Conclusion:       in.Conclusion,
			OriginalAdjustOn: &current.UUID,
			CreatedDate:      now,
			CreatedByUUID:    actor.UUID,
			ModifiedDate:     now,
			ModifiedByUUID:   actor.UUID,
		}
		if err == nil {
			// re-adding a previously removed object un-hides its context
			objectContext.CreatedDate = existing.CreatedDate
			objectContext.CreatedByUUID = existing.CreatedByUUID
			if err := tx.UpdateContext(ctx, objectContext); err != nil {
				return fmt.Errorf("update context: %w", err)
			}
		} else if err := tx.InsertContext(ctx, objectContext); err != nil {
			return fmt.Errorf("insert context: %w", err)
		}

		modified, err := nextDraftModified(ctx, tx, moduleID, in.Code, now)
		if err != nil {
			return err
		}
		draft := models.ModuleObjectVersion{ObjectVersion: current, ModuleID: moduleID}
		draft.UUID = uuid.New()
		draft.AdjustOn = &current.UUID
		draft.ModifiedDate = modified
		draft.ModifiedByUUID = actor.UUID
		draft.Payload = current.Payload.Clone()
		return insertDraft(ctx, tx, draft)
	})
	if err != nil {
		return models.ModuleObjectContext{}, err
	}

	s.logger.Info("object added to module",
		zap.Int64("module_id", moduleID),
		zap.String("code", in.Code),
		zap.String("action", string(in.Action)),
		zap.Stringer("actor", actor.UUID),
	)
	return objectContext, nil
}

// AddNewObject creates a new lineage. Its static row exists immediately, its
// first version only inside the module until completion.
func (s *Service) AddNewObject(ctx context.Context, actor permissions.Actor, moduleID int64, in AddNewObjectInput) (models.ObjectStatic, error) {
	if !s.objectTypeAllowed(in.ObjectType) {
		return models.ObjectStatic{}, apperrors.InvalidInput("object type %q is not allowed", in.ObjectType)
	}
	if utf8.RuneCountInString(in.Title) < minTextLength {
		return models.ObjectStatic{}, apperrors.InvalidInput("title must be at least %d characters", minTextLength)
	}

	var static models.ObjectStatic
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := editableModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanAddNewObjectToModule, actor, module.Managers()...); err != nil {
			return err
		}

		objectID, err := tx.NextObjectID(ctx, in.ObjectType)
		if err != nil {
			return fmt.Errorf("allocate %s id: %w", in.ObjectType, err)
		}
		static = models.ObjectStatic{
			ObjectType:   in.ObjectType,
			ObjectID:     objectID,
			Code:         lineage.FormatCode(in.ObjectType, objectID),
			OwnerOneUUID: in.OwnerOneUUID,
			OwnerTwoUUID: in.OwnerTwoUUID,
			CachedTitle:  in.Title,
		}
		if err := tx.InsertStatic(ctx, static); err != nil {
			return fmt.Errorf("insert static: %w", err)
		}

		now := s.now()
		objectContext := models.ModuleObjectContext{
			ModuleID:       moduleID,
			Code:           static.Code,
			ObjectType:     static.ObjectType,
			ObjectID:       static.ObjectID,
			Action:         models.ActionCreate,
			Explanation:    in.Explanation,
			Conclusion:     in.Conclusion,
			CreatedDate:    now,
			CreatedByUUID:  actor.UUID,
			ModifiedDate:   now,
			ModifiedByUUID: actor.UUID,
		}
		if err := tx.InsertContext(ctx, objectContext); err != nil {
			return fmt.Errorf("insert context: %w", err)
		}

		return insertDraft(ctx, tx, models.ModuleObjectVersion{
			ObjectVersion: models.ObjectVersion{
				UUID:           uuid.New(),
				Code:           static.Code,
				ObjectType:     static.ObjectType,
				ObjectID:       static.ObjectID,
				CreatedDate:    now,
				CreatedByUUID:  actor.UUID,
				ModifiedDate:   now.Truncate(lineage.Precision),
				ModifiedByUUID: actor.UUID,
				Payload:        models.Payload{Title: in.Title, Fields: map[string]any{}},
			},
			ModuleID: moduleID,
		})
	})
	if err != nil {
		return models.ObjectStatic{}, err
	}

	s.logger.Info("object created in module",
		zap.Int64("module_id", moduleID),
		zap.String("code", static.Code),
		zap.Stringer("actor", actor.UUID),
	)
	return static, nil
}

// PatchObject appends a new draft with changes applied to the latest draft.
// Existing drafts are never modified.
func (s *Service) PatchObject(ctx context.Context, actor permissions.Actor, moduleID int64, code string, changes map[string]any) (models.ModuleObjectVersion, error) {
	if len(changes) == 0 {
		return models.ModuleObjectVersion{}, apperrors.InvalidInput("no changes given")
	}

	var draft models.ModuleObjectVersion
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := editableModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanPatchObjectInModule, actor, module.Managers()...); err != nil {
			return err
		}
		if _, err := liveContext(ctx, tx, moduleID, code); err != nil {
			return err
		}

		modified, err := nextDraftModified(ctx, tx, moduleID, code, s.now())
		if err != nil {
			return err
		}
		previous, err := snapshot.ResolveDraft(ctx, tx, moduleID, code, modified)
		if err != nil {
			return err
		}
		payload, err := models.ApplyChanges(previous.Payload, changes)
		if err != nil {
			return err
		}

		draft = previous
		draft.UUID = uuid.New()
		draft.AdjustOn = &previous.UUID
		draft.ModifiedDate = modified
		draft.ModifiedByUUID = actor.UUID
		draft.Deleted = false
		draft.Payload = payload
		if err := insertDraft(ctx, tx, draft); err != nil {
			return err
		}
		if _, ok := changes[models.FieldTitle]; ok {
			return refreshUnpublishedTitle(ctx, tx, code, payload.Title, modified)
		}
		return nil
	})
	if err != nil {
		return models.ModuleObjectVersion{}, err
	}

	s.logger.Debug("object patched",
		zap.Int64("module_id", moduleID),
		zap.String("code", code),
		zap.Int("fields", len(changes)),
	)
	return draft, nil
}

// refreshUnpublishedTitle keeps the title cache of a lineage that has no main
// version yet in step with its draft.
func refreshUnpublishedTitle(ctx context.Context, tx storage.Tx, code, title string, at time.Time) error {
	_, err := snapshot.ResolveOne(ctx, tx, code, at, lineage.Latest)
	switch {
	case err == nil:
		return nil
	case !apperrors.IsNotFound(err):
		return err
	}
	if err := tx.UpdateCachedTitle(ctx, code, title); err != nil {
		return fmt.Errorf("update cached title of %s: %w", code, err)
	}
	return nil
}

// RemoveObject hides the context and appends a tombstone draft.
func (s *Service) RemoveObject(ctx context.Context, actor permissions.Actor, moduleID int64, code string) error {
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := editableModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanRemoveObjectFromModule, actor, module.Managers()...); err != nil {
			return err
		}
		objectContext, err := liveContext(ctx, tx, moduleID, code)
		if err != nil {
			return err
		}

		now := s.now()
		objectContext.Hidden = true
		objectContext.ModifiedDate = now
		objectContext.ModifiedByUUID = actor.UUID
		if err := tx.UpdateContext(ctx, objectContext); err != nil {
			return fmt.Errorf("hide context: %w", err)
		}

		modified, err := nextDraftModified(ctx, tx, moduleID, code, now)
		if err != nil {
			return err
		}
		previous, err := snapshot.ResolveDraft(ctx, tx, moduleID, code, modified)
		if err != nil {
			return err
		}
		tombstone := previous
		tombstone.UUID = uuid.New()
		tombstone.AdjustOn = &previous.UUID
		tombstone.ModifiedDate = modified
		tombstone.ModifiedByUUID = actor.UUID
		tombstone.Deleted = true
		return insertDraft(ctx, tx, tombstone)
	})
	if err != nil {
		return err
	}

	s.logger.Info("object removed from module",
		zap.Int64("module_id", moduleID),
		zap.String("code", code),
		zap.Stringer("actor", actor.UUID),
	)
	return nil
}

// EditObjectContext changes the action, explanation or conclusion of a live
// context. Create contexts keep their action.
func (s *Service) EditObjectContext(ctx context.Context, actor permissions.Actor, moduleID int64, code string, in EditContextInput) (models.ModuleObjectContext, error) {
	var objectContext models.ModuleObjectContext
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := editableModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanEditModuleObjectContext, actor, module.Managers()...); err != nil {
			return err
		}
		objectContext, err = liveContext(ctx, tx, moduleID, code)
		if err != nil {
			return err
		}

		if in.Action != nil && *in.Action != objectContext.Action {
			if !in.Action.Valid() {
				return apperrors.InvalidInput("unknown action %q", *in.Action)
			}
			if objectContext.Action == models.ActionCreate || *in.Action == models.ActionCreate {
				return apperrors.InvalidInput("action %s cannot become %s", objectContext.Action, *in.Action)
			}
			objectContext.Action = *in.Action
		}
		if in.Explanation != nil {
			objectContext.Explanation = *in.Explanation
		}
		if in.Conclusion != nil {
			objectContext.Conclusion = *in.Conclusion
		}
		objectContext.ModifiedDate = s.now()
		objectContext.ModifiedByUUID = actor.UUID
		return tx.UpdateContext(ctx, objectContext)
	})
	if err != nil {
		return models.ModuleObjectContext{}, err
	}
	return objectContext, nil
}
