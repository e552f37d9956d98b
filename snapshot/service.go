package snapshot

import (
	"context"
	"fmt"
	"slices"
	"time"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/lineage"
	"f0oster/lineage/logging"
	"f0oster/lineage/metrics"
	"f0oster/lineage/models"
	"f0oster/lineage/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("f0oster/lineage/snapshot")

// Service answers "which version of a lineage is visible at T" for the main
// timeline and for module workspaces. It never writes.
type Service struct {
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store storage.Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// ResolveLatest returns the single version of code visible at at.
func (s *Service) ResolveLatest(ctx context.Context, code string, at time.Time, mode lineage.Mode) (models.ObjectVersion, error) {
	defer metrics.Observe("resolve_latest", time.Now())
	ctx, span := tracer.Start(ctx, "snapshot.ResolveLatest", trace.WithAttributes(
		attribute.String("code", code),
		attribute.String("mode", mode.String()),
	))
	defer span.End()

	var out models.ObjectVersion
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = ResolveOne(ctx, tx, code, at, mode)
		return err
	})
	return out, err
}

// ResolveSnapshot returns one version per lineage of objectType visible at at.
func (s *Service) ResolveSnapshot(ctx context.Context, objectType string, at time.Time, mode lineage.Mode) ([]models.ObjectVersion, error) {
	defer metrics.Observe("resolve_snapshot", time.Now())
	ctx, span := tracer.Start(ctx, "snapshot.ResolveSnapshot", trace.WithAttributes(
		attribute.String("object_type", objectType),
		attribute.String("mode", mode.String()),
	))
	defer span.End()

	if objectType == "" {
		return nil, apperrors.InvalidInput("object type is required")
	}

	var out []models.ObjectVersion
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ResolveVersions(ctx, storage.VersionQuery{ObjectType: objectType, At: at, Mode: mode})
		if err != nil {
			return fmt.Errorf("resolve %s snapshot: %w", objectType, err)
		}
		return nil
	})
	span.SetAttributes(attribute.Int("versions", len(out)))
	return out, err
}

// LineageHistory returns every main timeline version of code, oldest first.
func (s *Service) LineageHistory(ctx context.Context, code string) ([]models.ObjectVersion, error) {
	var out []models.ObjectVersion
	err := s.store.View(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetStatic(ctx, code); err != nil {
			return err
		}
		var err error
		out, err = tx.ListVersions(ctx, code)
		if err != nil {
			return fmt.Errorf("list versions of %s: %w", code, err)
		}
		return nil
	})
	return out, err
}

// ModuleDrafts lists, per module, the newest draft of code. Tombstoned drafts
// are left out.
func (s *Service) ModuleDrafts(ctx context.Context, code string, filter DraftFilter) ([]ModuleDraft, error) {
	at := filter.At
	if at.IsZero() {
		at = s.now()
	}
	var allowed []models.StatusCode
	if filter.MinimumStatus != "" {
		allowed = models.StatusAfter(filter.MinimumStatus)
		if allowed == nil {
			return nil, apperrors.InvalidInput("%q is not a public module status", filter.MinimumStatus)
		}
	}

	var out []ModuleDraft
	err := s.store.View(ctx, func(tx storage.Tx) error {
		drafts, err := tx.ResolveDrafts(ctx, storage.DraftQuery{Code: code, At: at, Mode: lineage.Latest})
		if err != nil {
			return fmt.Errorf("resolve drafts of %s: %w", code, err)
		}

		for _, draft := range drafts {
			if draft.Deleted {
				continue
			}
			module, err := tx.GetModule(ctx, draft.ModuleID)
			if err != nil {
				return err
			}
			if filter.OnlyActive && (!module.Activated || module.Closed) {
				s.logger.Debug("skipping draft of inactive module",
					zap.String("code", code),
					zap.Int64("module_id", module.ModuleID),
				)
				continue
			}
			history, err := tx.ListModuleStatuses(ctx, module.ModuleID)
			if err != nil {
				return fmt.Errorf("list statuses of module %d: %w", module.ModuleID, err)
			}
			entry := ModuleDraft{Module: module, Draft: draft}
			if current, ok := models.CurrentStatus(history); ok {
				entry.Status = &current
			}
			if allowed != nil && (entry.Status == nil || !slices.Contains(allowed, entry.Status.Status)) {
				s.logger.Debug("skipping draft below minimum status",
					zap.String("code", code),
					zap.Int64("module_id", module.ModuleID),
					zap.String("minimum_status", string(filter.MinimumStatus)),
				)
				continue
			}
			out = append(out, entry)
		}
		return nil
	})
	if err == nil {
		s.logger.Debug("module drafts resolved", zap.String("code", code), zap.Int("drafts", len(out)))
	}
	return out, err
}

// ResolveOne resolves code inside an open unit of work.
func ResolveOne(ctx context.Context, tx storage.Tx, code string, at time.Time, mode lineage.Mode) (models.ObjectVersion, error) {
	rows, err := tx.ResolveVersions(ctx, storage.VersionQuery{Code: code, At: at, Mode: mode})
	if err != nil {
		return models.ObjectVersion{}, fmt.Errorf("resolve %s: %w", code, err)
	}
	switch len(rows) {
	case 0:
		return models.ObjectVersion{}, apperrors.NotFound("no %s version of %s at %s", mode, code, at.Format(time.RFC3339))
	case 1:
		return rows[0], nil
	default:
		return models.ObjectVersion{}, fmt.Errorf("resolve %s: %d rows for one lineage", code, len(rows))
	}
}

// ResolveDraft resolves the newest draft of code inside one module.
func ResolveDraft(ctx context.Context, tx storage.Tx, moduleID int64, code string, at time.Time) (models.ModuleObjectVersion, error) {
	rows, err := tx.ResolveDrafts(ctx, storage.DraftQuery{ModuleID: moduleID, Code: code, At: at, Mode: lineage.Latest})
	if err != nil {
		return models.ModuleObjectVersion{}, fmt.Errorf("resolve draft %s in module %d: %w", code, moduleID, err)
	}
	if len(rows) == 0 {
		return models.ModuleObjectVersion{}, apperrors.NotFound("no draft of %s in module %d", code, moduleID)
	}
	return rows[0], nil
}
