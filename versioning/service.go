package versioning

import (
	"context"
	"fmt"
	"time"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/diff"
	"f0oster/lineage/lineage"
	"f0oster/lineage/logging"
	"f0oster/lineage/metrics"
	"f0oster/lineage/models"
	"f0oster/lineage/snapshot"
	"f0oster/lineage/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("f0oster/lineage/versioning")

// Service is the only writer of the main timeline besides object creation.
// It collapses a module's draft history into one new version per lineage.
type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logging.OrNop(logger)}
}

// CommitModule copies the latest draft of every live lineage of module into
// the main timeline. It runs inside the caller's unit of work and fails fast:
// the first error aborts, and the caller's rollback discards earlier inserts.
func (s *Service) CommitModule(
	ctx context.Context,
	tx storage.Tx,
	module models.Module,
	actor uuid.UUID,
	at time.Time,
	startValidity *time.Time,
) ([]Commit, error) {
	ctx, span := tracer.Start(ctx, "versioning.CommitModule", trace.WithAttributes(
		attribute.Int64("module_id", module.ModuleID),
	))
	defer span.End()

	contexts, err := tx.ListContexts(ctx, module.ModuleID, false)
	if err != nil {
		return nil, fmt.Errorf("list contexts of module %d: %w", module.ModuleID, err)
	}

	start := at
	if startValidity != nil {
		start = *startValidity
	}
	start = start.Truncate(lineage.Precision)

	commits := make([]Commit, 0, len(contexts))
	for i, objectContext := range contexts {
		commit, err := s.commitObject(ctx, tx, objectContext, actor, at, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit failed")
			return nil, fmt.Errorf("commit object %d (%s): %w", i, objectContext.Code, err)
		}
		commits = append(commits, commit)
	}

	span.SetAttributes(attribute.Int("objects", len(commits)))
	metrics.CompletedObjects.Observe(float64(len(commits)))
	return commits, nil
}

// commitObject merges one lineage.
func (s *Service) commitObject(
	ctx context.Context,
	tx storage.Tx,
	objectContext models.ModuleObjectContext,
	actor uuid.UUID,
	at time.Time,
	start time.Time,
) (Commit, error) {
	code := objectContext.Code

	// drafts written within the same clock tick sit a few microseconds past at
	draftAt, err := tx.LatestDraftModified(ctx, objectContext.ModuleID, code)
	if err != nil {
		return Commit{}, fmt.Errorf("latest draft of %s: %w", code, err)
	}
	if draftAt.Before(at) {
		draftAt = at
	}
	draft, err := snapshot.ResolveDraft(ctx, tx, objectContext.ModuleID, code, draftAt)
	if err != nil {
		return Commit{}, err
	}
	if draft.Deleted {
		return Commit{}, apperrors.InvalidState("latest draft of %s is removed while its context is live", code)
	}

	// serialises concurrent writers of this lineage
	static, err := tx.LockStatic(ctx, code)
	if err != nil {
		return Commit{}, err
	}
	previous, err := tx.LatestModified(ctx, code)
	if err != nil {
		return Commit{}, fmt.Errorf("latest modification of %s: %w", code, err)
	}
	modified := lineage.NextModified(at, previous)

	version := models.ObjectVersion{
		UUID:           uuid.New(),
		Code:           code,
		ObjectType:     static.ObjectType,
		ObjectID:       static.ObjectID,
		AdjustOn:       objectContext.OriginalAdjustOn,
		CreatedDate:    draft.CreatedDate,
		CreatedByUUID:  draft.CreatedByUUID,
		ModifiedDate:   modified,
		ModifiedByUUID: actor,
		StartValidity:  &start,
		Payload:        draft.Payload.Clone(),
	}
	if objectContext.Action == models.ActionTerminate {
		end := start
		version.EndValidity = &end
	}

	if err := tx.InsertVersion(ctx, version); err != nil {
		return Commit{}, fmt.Errorf("insert version: %w", err)
	}
	metrics.VersionsWritten.WithLabelValues("main").Inc()

	refreshed, err := s.refreshCachedTitle(ctx, tx, version)
	if err != nil {
		return Commit{}, err
	}

	s.logger.Debug("lineage committed",
		zap.Int64("module_id", objectContext.ModuleID),
		zap.String("code", code),
		zap.String("action", string(objectContext.Action)),
		zap.String("version", version.UUID.String()),
		zap.Bool("title_refreshed", refreshed),
	)

	return Commit{Context: objectContext, Version: version, TitleRefreshed: refreshed}, nil
}

// refreshCachedTitle updates the title cache unless some other version is
// currently valid for the lineage after the insert.
func (s *Service) refreshCachedTitle(ctx context.Context, tx storage.Tx, committed models.ObjectVersion) (bool, error) {
	current, err := snapshot.ResolveOne(ctx, tx, committed.Code, committed.ModifiedDate, lineage.Valid)
	switch {
	case err == nil && current.UUID != committed.UUID:
		return false, nil
	case err != nil && !apperrors.IsNotFound(err):
		return false, err
	}
	if err := tx.UpdateCachedTitle(ctx, committed.Code, committed.Title); err != nil {
		return false, fmt.Errorf("update cached title of %s: %w", committed.Code, err)
	}
	return true, nil
}

// Diff returns the field level changes between two payloads.
func Diff(prev, curr models.Payload) []diff.FieldChange {
	return diff.FindChanges(prev.AsMap(), curr.AsMap())
}
