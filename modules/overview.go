package modules

import (
	"context"
	"fmt"

	"f0oster/lineage/lineage"
	"f0oster/lineage/models"
	"f0oster/lineage/snapshot"
	"f0oster/lineage/storage"
	"f0oster/lineage/versioning"
)

// ListModules returns the modules matching filter, ordered by id, each with
// its current status.
func (s *Service) ListModules(ctx context.Context, filter storage.ModuleFilter) ([]ModuleSummary, error) {
	var out []ModuleSummary
	err := s.store.View(ctx, func(tx storage.Tx) error {
		found, err := tx.ListModules(ctx, filter)
		if err != nil {
			return fmt.Errorf("list modules: %w", err)
		}
		out = make([]ModuleSummary, 0, len(found))
		for _, m := range found {
			history, err := tx.ListModuleStatuses(ctx, m.ModuleID)
			if err != nil {
				return fmt.Errorf("list statuses of module %d: %w", m.ModuleID, err)
			}
			summary := ModuleSummary{Module: m}
			if current, ok := models.CurrentStatus(history); ok {
				summary.Status = &current
			}
			out = append(out, summary)
		}
		return nil
	})
	return out, err
}

// Overview returns the module with its status log, live contexts and the
// current draft of each live lineage.
func (s *Service) Overview(ctx context.Context, moduleID int64) (Overview, error) {
	var out Overview
	err := s.store.View(ctx, func(tx storage.Tx) error {
		module, err := tx.GetModule(ctx, moduleID)
		if err != nil {
			return err
		}
		history, err := tx.ListModuleStatuses(ctx, moduleID)
		if err != nil {
			return fmt.Errorf("list statuses: %w", err)
		}
		contexts, err := tx.ListContexts(ctx, moduleID, false)
		if err != nil {
			return fmt.Errorf("list contexts: %w", err)
		}
		drafts, err := tx.ResolveDrafts(ctx, storage.DraftQuery{ModuleID: moduleID, At: s.now(), Mode: lineage.Latest})
		if err != nil {
			return fmt.Errorf("resolve drafts: %w", err)
		}

		out = Overview{Module: module, StatusHistory: history, Contexts: contexts}
		if current, ok := models.CurrentStatus(history); ok {
			out.Status = &current
		}
		for _, d := range drafts {
			if !d.Deleted {
				out.Drafts = append(out.Drafts, d)
			}
		}
		return nil
	})
	return out, err
}

// Diff compares the current draft of code with the main version it was
// derived from. New objects are compared with an empty payload.
func (s *Service) Diff(ctx context.Context, moduleID int64, code string) (ObjectDiff, error) {
	var out ObjectDiff
	err := s.store.View(ctx, func(tx storage.Tx) error {
		objectContext, err := tx.GetContext(ctx, moduleID, code)
		if err != nil {
			return err
		}
		latest, err := tx.LatestDraftModified(ctx, moduleID, code)
		if err != nil {
			return fmt.Errorf("latest draft of %s: %w", code, err)
		}
		draft, err := snapshot.ResolveDraft(ctx, tx, moduleID, code, latest)
		if err != nil {
			return err
		}

		out = ObjectDiff{Code: code, Draft: draft}
		base := models.Payload{}
		if objectContext.OriginalAdjustOn != nil {
			v, err := tx.GetVersion(ctx, *objectContext.OriginalAdjustOn)
			if err != nil {
				return err
			}
			out.Base = &v
			base = v.Payload
		}
		out.Changes = versioning.Diff(base, draft.Payload)
		return nil
	})
	return out, err
}

// DraftHistory returns every draft of code in the module, oldest first.
func (s *Service) DraftHistory(ctx context.Context, moduleID int64, code string) ([]models.ModuleObjectVersion, error) {
	var out []models.ModuleObjectVersion
	err := s.store.View(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetContext(ctx, moduleID, code); err != nil {
			return err
		}
		var err error
		out, err = tx.ListDrafts(ctx, moduleID, code)
		return err
	})
	return out, err
}
