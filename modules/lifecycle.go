package modules

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/events"
	"f0oster/lineage/metrics"
	"f0oster/lineage/models"
	"f0oster/lineage/permissions"
	"f0oster/lineage/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minTextLength = 3

func validateModuleFields(title, description string, manager1 uuid.UUID, manager2 *uuid.UUID) error {
	if utf8.RuneCountInString(title) < minTextLength {
		return apperrors.InvalidInput("title must be at least %d characters", minTextLength)
	}
	if utf8.RuneCountInString(description) < minTextLength {
		return apperrors.InvalidInput("description must be at least %d characters", minTextLength)
	}
	if manager1 == uuid.Nil {
		return apperrors.InvalidInput("module manager 1 is required")
	}
	if manager2 != nil && *manager2 == manager1 {
		return apperrors.InvalidInput("duplicate manager")
	}
	return nil
}

// CreateModule opens a new, not yet activated, module.
func (s *Service) CreateModule(ctx context.Context, actor permissions.Actor, in CreateModuleInput) (models.Module, error) {
	if err := s.checker.Guard(permissions.CanCreateModule, actor); err != nil {
		return models.Module{}, err
	}
	if err := validateModuleFields(in.Title, in.Description, in.ModuleManager1UUID, in.ModuleManager2UUID); err != nil {
		return models.Module{}, err
	}

	now := s.now()
	module := models.Module{
		Title:              in.Title,
		Description:        in.Description,
		ModuleManager1UUID: in.ModuleManager1UUID,
		ModuleManager2UUID: in.ModuleManager2UUID,
		CreatedDate:        now,
		CreatedByUUID:      actor.UUID,
		ModifiedDate:       now,
		ModifiedByUUID:     actor.UUID,
	}

	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		id, err := tx.InsertModule(ctx, module)
		if err != nil {
			return fmt.Errorf("insert module: %w", err)
		}
		module.ModuleID = id
		_, err = tx.InsertModuleStatus(ctx, models.ModuleStatus{
			ModuleID:      id,
			Status:        models.StatusNietActief,
			CreatedDate:   now,
			CreatedByUUID: actor.UUID,
		})
		return err
	})
	metrics.ModuleTransitions.WithLabelValues("create", metrics.Result(err)).Inc()
	if err != nil {
		return models.Module{}, err
	}

	s.logger.Info("module created", zap.Int64("module_id", module.ModuleID), zap.Stringer("actor", actor.UUID))
	return module, nil
}

// EditModule changes module metadata and toggles the temporary lock.
func (s *Service) EditModule(ctx context.Context, actor permissions.Actor, moduleID int64, in EditModuleInput) (models.Module, error) {
	var module models.Module
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		var err error
		module, err = openModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanEditModule, actor, module.Managers()...); err != nil {
			return err
		}

		if in.Title != nil {
			module.Title = *in.Title
		}
		if in.Description != nil {
			module.Description = *in.Description
		}
		if in.ModuleManager1UUID != nil {
			module.ModuleManager1UUID = *in.ModuleManager1UUID
		}
		if in.ModuleManager2UUID != nil {
			module.ModuleManager2UUID = in.ModuleManager2UUID
		}
		if in.TemporaryLocked != nil {
			module.TemporaryLocked = *in.TemporaryLocked
		}
		if err := validateModuleFields(module.Title, module.Description, module.ModuleManager1UUID, module.ModuleManager2UUID); err != nil {
			return err
		}

		module.ModifiedDate = s.now()
		module.ModifiedByUUID = actor.UUID
		return tx.UpdateModule(ctx, module)
	})
	metrics.ModuleTransitions.WithLabelValues("edit", metrics.Result(err)).Inc()
	if err != nil {
		return models.Module{}, err
	}
	return module, nil
}

// appendStatus writes a status row and returns it.
func appendStatus(ctx context.Context, tx storage.Tx, moduleID int64, status models.StatusCode, actor uuid.UUID, at time.Time) (models.ModuleStatus, error) {
	st := models.ModuleStatus{
		ModuleID:      moduleID,
		Status:        status,
		CreatedDate:   at,
		CreatedByUUID: actor,
	}
	id, err := tx.InsertModuleStatus(ctx, st)
	if err != nil {
		return models.ModuleStatus{}, fmt.Errorf("append status %s: %w", status, err)
	}
	st.ID = id
	return st, nil
}

// Activate moves a module out of Niet-Actief. Only its managers may do so.
func (s *Service) Activate(ctx context.Context, actor permissions.Actor, moduleID int64) (models.ModuleStatus, error) {
	var st models.ModuleStatus
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := openModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.GuardWhitelist(actor, module.Managers()...); err != nil {
			return err
		}
		if module.Activated {
			return apperrors.InvalidState("module %d is already activated", moduleID)
		}

		now := s.now()
		module.Activated = true
		module.ModifiedDate = now
		module.ModifiedByUUID = actor.UUID
		if err := tx.UpdateModule(ctx, module); err != nil {
			return err
		}
		st, err = appendStatus(ctx, tx, moduleID, models.StatusOntwerpGSConcept, actor.UUID, now)
		return err
	})
	metrics.ModuleTransitions.WithLabelValues("activate", metrics.Result(err)).Inc()
	if err != nil {
		return models.ModuleStatus{}, err
	}

	s.notify(ctx, events.Event{
		Type:       events.ModuleStatusChanged,
		ModuleID:   moduleID,
		Status:     string(st.Status),
		Actor:      actor.UUID.String(),
		OccurredAt: st.CreatedDate,
	})
	return st, nil
}

// PatchStatus appends a public status. The module must be activated and
// locked; ordering of statuses is left to the caller.
func (s *Service) PatchStatus(ctx context.Context, actor permissions.Actor, moduleID int64, status models.StatusCode) (models.ModuleStatus, error) {
	if !status.IsPublic() {
		return models.ModuleStatus{}, apperrors.InvalidInput("%q is not a public module status", status)
	}

	var st models.ModuleStatus
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := openModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanPatchModuleStatus, actor, module.Managers()...); err != nil {
			return err
		}
		if !module.Activated {
			return apperrors.InvalidState("module %d is not activated", moduleID)
		}
		if !module.TemporaryLocked {
			return apperrors.InvalidState("module %d must be locked to change its status", moduleID)
		}
		st, err = appendStatus(ctx, tx, moduleID, status, actor.UUID, s.now())
		return err
	})
	metrics.ModuleTransitions.WithLabelValues("patch_status", metrics.Result(err)).Inc()
	if err != nil {
		return models.ModuleStatus{}, err
	}

	s.logger.Info("module status changed",
		zap.Int64("module_id", moduleID),
		zap.String("status", string(status)),
		zap.Stringer("actor", actor.UUID),
	)
	s.notify(ctx, events.Event{
		Type:       events.ModuleStatusChanged,
		ModuleID:   moduleID,
		Status:     string(status),
		Actor:      actor.UUID.String(),
		OccurredAt: st.CreatedDate,
	})
	return st, nil
}

// Close ends a module unsuccessfully. It cannot be reopened.
func (s *Service) Close(ctx context.Context, actor permissions.Actor, moduleID int64) error {
	var st models.ModuleStatus
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := openModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanCloseModule, actor, module.Managers()...); err != nil {
			return err
		}

		now := s.now()
		module.Closed = true
		module.Successful = false
		module.TemporaryLocked = false
		module.ModifiedDate = now
		module.ModifiedByUUID = actor.UUID
		if err := tx.UpdateModule(ctx, module); err != nil {
			return err
		}
		st, err = appendStatus(ctx, tx, moduleID, models.StatusGesloten, actor.UUID, now)
		return err
	})
	metrics.ModuleTransitions.WithLabelValues("close", metrics.Result(err)).Inc()
	if err != nil {
		return err
	}

	s.logger.Info("module closed", zap.Int64("module_id", moduleID), zap.Stringer("actor", actor.UUID))
	s.notify(ctx, events.Event{
		Type:       events.ModuleClosed,
		ModuleID:   moduleID,
		Status:     string(st.Status),
		Actor:      actor.UUID.String(),
		OccurredAt: st.CreatedDate,
	})
	return nil
}

// Complete merges the module into the main timeline and closes it
// successfully. The module must be locked and its current status must be
// Vastgesteld. Versions start at startValidity, or at the completion time.
func (s *Service) Complete(ctx context.Context, actor permissions.Actor, moduleID int64, startValidity *time.Time) (CompleteResult, error) {
	defer metrics.Observe("complete_module", time.Now())

	var result CompleteResult
	err := s.store.RunInTx(ctx, func(tx storage.Tx) error {
		module, err := openModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.checker.Guard(permissions.CanCompleteModule, actor, module.Managers()...); err != nil {
			return err
		}
		if !module.Activated {
			return apperrors.InvalidState("module %d is not activated", moduleID)
		}
		if !module.TemporaryLocked {
			return apperrors.InvalidState("module %d must be locked to complete", moduleID)
		}

		history, err := tx.ListModuleStatuses(ctx, moduleID)
		if err != nil {
			return fmt.Errorf("list statuses of module %d: %w", moduleID, err)
		}
		current, ok := models.CurrentStatus(history)
		if !ok || current.Status != models.StatusVastgesteld {
			return apperrors.InvalidState("module %d can only be completed from status %s", moduleID, models.StatusVastgesteld)
		}

		now := s.now()
		commits, err := s.merger.CommitModule(ctx, tx, module, actor.UUID, now, startValidity)
		if err != nil {
			return err
		}

		module.Closed = true
		module.Successful = true
		module.TemporaryLocked = false
		module.ModifiedDate = now
		module.ModifiedByUUID = actor.UUID
		if err := tx.UpdateModule(ctx, module); err != nil {
			return err
		}
		if _, err := appendStatus(ctx, tx, moduleID, models.StatusModuleAfgerond, actor.UUID, now); err != nil {
			return err
		}

		result = CompleteResult{Module: module, CompletedAt: now, Commits: commits}
		return nil
	})
	metrics.ModuleTransitions.WithLabelValues("complete", metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Warn("module completion rolled back", zap.Int64("module_id", moduleID), zap.Error(err))
		return CompleteResult{}, err
	}

	codes := make([]string, 0, len(result.Commits))
	for _, c := range result.Commits {
		codes = append(codes, c.Version.Code)
	}
	s.logger.Info("module completed",
		zap.Int64("module_id", moduleID),
		zap.Int("objects", len(result.Commits)),
		zap.Stringer("actor", actor.UUID),
	)
	s.notify(ctx, events.Event{
		Type:       events.ModuleCompleted,
		ModuleID:   moduleID,
		Status:     string(models.StatusModuleAfgerond),
		Codes:      codes,
		Actor:      actor.UUID.String(),
		OccurredAt: result.CompletedAt,
	})
	return result, nil
}
