// Package relations implements acknowledged relations: a two sided approval
// protocol linking two lineages. Each unordered pair of codes is stored once,
// in canonical order, and reopening a denied or deleted pair appends a new
// version instead of reusing the old row.
package relations

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/events"
	"f0oster/lineage/lineage"
	"f0oster/lineage/logging"
	"f0oster/lineage/metrics"
	"f0oster/lineage/models"
	"f0oster/lineage/permissions"
	"f0oster/lineage/storage"

	"go.uber.org/zap"
)

// Options configures a Service.
type Options struct {
	// AllowedObjectTypes limits the object types a relation may point at.
	// Empty allows every type.
	AllowedObjectTypes []string
	Now                func() time.Time
}

type Service struct {
	store     storage.Store
	checker   *permissions.Checker
	publisher events.Publisher
	logger    *zap.Logger
	opts      Options
}

func NewService(store storage.Store, checker *permissions.Checker, publisher events.Publisher, logger *zap.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		store:     store,
		checker:   checker,
		publisher: publisher,
		logger:    logging.OrNop(logger),
		opts:      opts,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now().Truncate(lineage.Precision)
}

// pair validates both codes and returns them in canonical order.
func (s *Service) pair(code, other string) (string, string, error) {
	for _, c := range []string{code, other} {
		objectType, _, err := lineage.ParseCode(c)
		if err != nil {
			return "", "", apperrors.InvalidInput("%v", err)
		}
		if len(s.opts.AllowedObjectTypes) > 0 && !slices.Contains(s.opts.AllowedObjectTypes, objectType) {
			return "", "", apperrors.InvalidInput("object type %q cannot be related", objectType)
		}
	}
	from, to, err := lineage.OrderedPair(code, other)
	if err != nil {
		return "", "", apperrors.InvalidInput("%v", err)
	}
	return from, to, nil
}

// Request asks the other lineage to acknowledge a relation and approves the
// caller's side. When the other side already requested the same pair, the
// request counts as its approval.
func (s *Service) Request(ctx context.Context, actor permissions.Actor, in RequestInput) (models.RelationView, error) {
	from, to, err := s.pair(in.Code, in.OtherCode)
	if err != nil {
		return models.RelationView{}, err
	}
	if err := s.checker.Guard(permissions.CanEditAcknowledgedRelation, actor); err != nil {
		return models.RelationView{}, err
	}

	var (
		relation  models.AcknowledgedRelation
		operation = "request"
	)
	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.LockRelationPair(ctx, from, to); err != nil {
			return fmt.Errorf("lock relation %s/%s: %w", from, to, err)
		}
		for _, code := range []string{from, to} {
			if _, err := tx.GetStatic(ctx, code); err != nil {
				if apperrors.IsNotFound(err) {
					return apperrors.IntegrityViolation("object %s does not exist", code)
				}
				return err
			}
		}

		now := s.now()
		previous, err := tx.GetRelation(ctx, from, to)
		switch {
		case err != nil && !apperrors.IsNotFound(err):
			return err
		case err == nil && previous.IsActive():
			if previous.RequestedByCode == in.Code {
				return apperrors.Conflict("relation %s/%s was already requested by %s", from, to, in.Code)
			}
			if previous.IsAcknowledged() {
				return apperrors.Conflict("relation %s/%s is already acknowledged", from, to)
			}
			relation = previous
			operation = "counter_approve"
			side, err := relation.Side(in.Code)
			if err != nil {
				return err
			}
			side.Title = in.Title
			side.Explanation = in.Explanation
			side.Approve(now, actor.UUID)
			if err := relation.ApplySide(side); err != nil {
				return err
			}
			relation.ModifiedDate = now
			relation.ModifiedByUUID = actor.UUID
			return tx.UpdateRelation(ctx, relation)
		}

		mine := models.RelationSide{Code: in.Code, Title: in.Title, Explanation: in.Explanation}
		mine.Approve(now, actor.UUID)
		relation = models.AcknowledgedRelation{
			Version:         previous.Version + 1,
			RequestedByCode: in.Code,
			CreatedDate:     now,
			CreatedByUUID:   actor.UUID,
			ModifiedDate:    now,
			ModifiedByUUID:  actor.UUID,
		}
		relation.WithSides(mine, models.RelationSide{Code: in.OtherCode})
		if err := tx.InsertRelation(ctx, relation); err != nil {
			return fmt.Errorf("insert relation %s/%s: %w", from, to, err)
		}
		return nil
	})
	return s.finish(ctx, actor, operation, in.Code, relation, err)
}

// Edit changes the caller's side of the newest active relation of the pair.
func (s *Service) Edit(ctx context.Context, actor permissions.Actor, code, other string, in EditInput) (models.RelationView, error) {
	return s.mutate(ctx, actor, "edit", code, other, func(relation *models.AcknowledgedRelation, now time.Time) error {
		side, err := relation.Side(code)
		if err != nil {
			return err
		}
		if in.Title != nil {
			side.Title = *in.Title
		}
		if in.Explanation != nil {
			side.Explanation = *in.Explanation
		}
		if in.Acknowledged != nil {
			if *in.Acknowledged {
				side.Approve(now, actor.UUID)
			} else {
				side.Disapprove()
			}
		}
		return relation.ApplySide(side)
	})
}

// Approve records the caller's approval on its own side.
func (s *Service) Approve(ctx context.Context, actor permissions.Actor, code, other string) (models.RelationView, error) {
	approve := true
	return s.Edit(ctx, actor, code, other, EditInput{Acknowledged: &approve})
}

// Disapprove clears the caller's approval. The other side is untouched.
func (s *Service) Disapprove(ctx context.Context, actor permissions.Actor, code, other string) (models.RelationView, error) {
	approve := false
	return s.Edit(ctx, actor, code, other, EditInput{Acknowledged: &approve})
}

func (s *Service) EditExplanation(ctx context.Context, actor permissions.Actor, code, other, explanation string) (models.RelationView, error) {
	return s.Edit(ctx, actor, code, other, EditInput{Explanation: &explanation})
}

// Deny rejects the relation. The pair stays inert until a new request.
func (s *Service) Deny(ctx context.Context, actor permissions.Actor, code, other string) (models.RelationView, error) {
	return s.mutate(ctx, actor, "deny", code, other, func(relation *models.AcknowledgedRelation, now time.Time) error {
		relation.Denied = &now
		return nil
	})
}

// Delete soft removes the relation. The pair stays inert until a new request.
func (s *Service) Delete(ctx context.Context, actor permissions.Actor, code, other string) (models.RelationView, error) {
	return s.mutate(ctx, actor, "delete", code, other, func(relation *models.AcknowledgedRelation, now time.Time) error {
		relation.DeletedAt = &now
		return nil
	})
}

// mutate applies fn to the newest version of the pair. Denied and deleted
// relations reject every change.
func (s *Service) mutate(
	ctx context.Context,
	actor permissions.Actor,
	operation, code, other string,
	fn func(relation *models.AcknowledgedRelation, now time.Time) error,
) (models.RelationView, error) {
	from, to, err := s.pair(code, other)
	if err != nil {
		return models.RelationView{}, err
	}
	if err := s.checker.Guard(permissions.CanEditAcknowledgedRelation, actor); err != nil {
		return models.RelationView{}, err
	}

	var relation models.AcknowledgedRelation
	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.LockRelationPair(ctx, from, to); err != nil {
			return fmt.Errorf("lock relation %s/%s: %w", from, to, err)
		}
		var err error
		relation, err = tx.GetRelation(ctx, from, to)
		if err != nil {
			return err
		}
		if !relation.IsActive() {
			return apperrors.InvalidState("relation %s/%s is no longer active", from, to)
		}

		now := s.now()
		if err := fn(&relation, now); err != nil {
			return err
		}
		relation.ModifiedDate = now
		relation.ModifiedByUUID = actor.UUID
		return tx.UpdateRelation(ctx, relation)
	})
	return s.finish(ctx, actor, operation, code, relation, err)
}

// finish records the outcome of a relation change and publishes it.
func (s *Service) finish(ctx context.Context, actor permissions.Actor, operation, perspective string, relation models.AcknowledgedRelation, err error) (models.RelationView, error) {
	metrics.RelationTransitions.WithLabelValues(operation, metrics.Result(err)).Inc()
	if err != nil {
		var appErr *apperrors.Error
		if !errors.As(err, &appErr) {
			s.logger.Error("relation change failed", zap.String("operation", operation), zap.String("code", perspective), zap.Error(err))
		}
		return models.RelationView{}, err
	}

	s.logger.Info("relation changed",
		zap.String("operation", operation),
		zap.String("from", relation.FromCode),
		zap.String("to", relation.ToCode),
		zap.Int("version", relation.Version),
		zap.Bool("acknowledged", relation.IsAcknowledged()),
		zap.Stringer("actor", actor.UUID),
	)
	events.Notify(ctx, s.publisher, s.logger, events.Event{
		Type:       events.RelationChanged,
		Codes:      []string{relation.FromCode, relation.ToCode},
		Operation:  operation,
		Actor:      actor.UUID.String(),
		OccurredAt: relation.ModifiedDate,
	})
	return relation.View(perspective), nil
}

// Get returns the newest version of the pair seen from code. The lookup is
// commutative in its arguments.
func (s *Service) Get(ctx context.Context, code, other string) (models.RelationView, error) {
	from, to, err := s.pair(code, other)
	if err != nil {
		return models.RelationView{}, err
	}
	var relation models.AcknowledgedRelation
	err = s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		relation, err = tx.GetRelation(ctx, from, to)
		return err
	})
	if err != nil {
		return models.RelationView{}, err
	}
	return relation.View(code), nil
}

// List returns the relations of code, newest version per pair.
func (s *Service) List(ctx context.Context, code string, filter ListFilter) ([]models.RelationView, error) {
	if _, _, err := lineage.ParseCode(code); err != nil {
		return nil, apperrors.InvalidInput("%v", err)
	}
	var rows []models.AcknowledgedRelation
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		rows, err = tx.ListRelations(ctx, code)
		if err != nil {
			return fmt.Errorf("list relations of %s: %w", code, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.RelationView, 0, len(rows))
	for _, r := range rows {
		if !filter.ShowInactive && !r.IsActive() {
			continue
		}
		if filter.RequestedByMe && r.RequestedByCode != code {
			continue
		}
		if filter.Acknowledged != nil && r.IsAcknowledged() != *filter.Acknowledged {
			continue
		}
		out = append(out, r.View(code))
	}
	return out, nil
}
