package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/lineage"
	"f0oster/lineage/models"
	"f0oster/lineage/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// dbTx implements storage.Tx on one pgx transaction.
type dbTx struct {
	tx pgx.Tx
}

var _ storage.Tx = (*dbTx)(nil)

// notFound turns pgx.ErrNoRows into an apperrors not found error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound(format, args...)
	}
	return err
}

func (d *dbTx) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := d.tx.Exec(ctx, query, args...); err != nil {
		return apperrors.FromPG(fmt.Errorf("%s: %w", what, err), what)
	}
	return nil
}

// execOne is exec for updates that must hit exactly one row.
func (d *dbTx) execOne(ctx context.Context, what, query string, args ...any) error {
	tag, err := d.tx.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.FromPG(fmt.Errorf("%s: %w", what, err), what)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("%s", what)
	}
	return nil
}

func (d *dbTx) GetStatic(ctx context.Context, code string) (models.ObjectStatic, error) {
	s, err := scanStatic(d.tx.QueryRow(ctx, GetStatic, code))
	if err != nil {
		return models.ObjectStatic{}, notFound(err, "object %s", code)
	}
	return s, nil
}

func (d *dbTx) LockStatic(ctx context.Context, code string) (models.ObjectStatic, error) {
	s, err := scanStatic(d.tx.QueryRow(ctx, LockStatic, code))
	if err != nil {
		return models.ObjectStatic{}, notFound(err, "object %s", code)
	}
	return s, nil
}

func (d *dbTx) InsertStatic(ctx context.Context, s models.ObjectStatic) error {
	return d.exec(ctx, "object "+s.Code, InsertStatic,
		s.Code, s.ObjectType, s.ObjectID, uuidPtrToPgtype(s.OwnerOneUUID), uuidPtrToPgtype(s.OwnerTwoUUID), s.CachedTitle)
}

func (d *dbTx) UpdateCachedTitle(ctx context.Context, code, title string) error {
	return d.execOne(ctx, "object "+code, UpdateCachedTitle, code, title)
}

func (d *dbTx) NextObjectID(ctx context.Context, objectType string) (int64, error) {
	if _, err := d.tx.Exec(ctx, LockObjectType, objectType); err != nil {
		return 0, fmt.Errorf("lock object type %s: %w", objectType, err)
	}
	var next int64
	if err := d.tx.QueryRow(ctx, NextObjectID, objectType).Scan(&next); err != nil {
		return 0, fmt.Errorf("next %s id: %w", objectType, err)
	}
	return next, nil
}

func (d *dbTx) InsertVersion(ctx context.Context, v models.ObjectVersion) error {
	args, err := versionArgs(v)
	if err != nil {
		return err
	}
	return d.exec(ctx, "version of "+v.Code, InsertVersion, args...)
}

func (d *dbTx) GetVersion(ctx context.Context, id uuid.UUID) (models.ObjectVersion, error) {
	rows, err := d.tx.Query(ctx, GetVersion, uuidToPgtype(id))
	if err != nil {
		return models.ObjectVersion{}, fmt.Errorf("get version %s: %w", id, err)
	}
	versions, err := scanVersions(rows)
	if err != nil {
		return models.ObjectVersion{}, fmt.Errorf("get version %s: %w", id, err)
	}
	if len(versions) == 0 {
		return models.ObjectVersion{}, apperrors.NotFound("version %s", id)
	}
	return versions[0], nil
}

func (d *dbTx) ListVersions(ctx context.Context, code string) ([]models.ObjectVersion, error) {
	rows, err := d.tx.Query(ctx, ListVersions, code)
	if err != nil {
		return nil, err
	}
	return scanVersions(rows)
}

func (d *dbTx) ResolveVersions(ctx context.Context, q storage.VersionQuery) ([]models.ObjectVersion, error) {
	rows, err := d.tx.Query(ctx, ResolveVersions, q.Code, q.ObjectType, timeToPgtype(q.At), q.Mode == lineage.Valid)
	if err != nil {
		return nil, err
	}
	return scanVersions(rows)
}

func (d *dbTx) latest(ctx context.Context, query string, args ...any) (time.Time, error) {
	var latest pgtype.Timestamp
	if err := d.tx.QueryRow(ctx, query, args...).Scan(&latest); err != nil {
		return time.Time{}, err
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

func (d *dbTx) LatestModified(ctx context.Context, code string) (time.Time, error) {
	return d.latest(ctx, LatestModified, code)
}

func (d *dbTx) InsertModule(ctx context.Context, m models.Module) (int64, error) {
	var id int64
	err := d.tx.QueryRow(ctx, InsertModule,
		m.Title, m.Description, uuidToPgtype(m.ModuleManager1UUID), uuidPtrToPgtype(m.ModuleManager2UUID),
		m.Activated, m.Closed, m.Successful, m.TemporaryLocked,
		timeToPgtype(m.CreatedDate), uuidToPgtype(m.CreatedByUUID), timeToPgtype(m.ModifiedDate), uuidToPgtype(m.ModifiedByUUID),
	).Scan(&id)
	if err != nil {
		return 0, apperrors.FromPG(fmt.Errorf("insert module: %w", err), "module")
	}
	return id, nil
}

func (d *dbTx) GetModule(ctx context.Context, moduleID int64) (models.Module, error) {
	m, err := scanModule(d.tx.QueryRow(ctx, GetModule, moduleID))
	if err != nil {
		return models.Module{}, notFound(err, "module %d", moduleID)
	}
	return m, nil
}

func (d *dbTx) LockModule(ctx context.Context, moduleID int64) (models.Module, error) {
	m, err := scanModule(d.tx.QueryRow(ctx, LockModule, moduleID))
	if err != nil {
		return models.Module{}, notFound(err, "module %d", moduleID)
	}
	return m, nil
}

func (d *dbTx) UpdateModule(ctx context.Context, m models.Module) error {
	return d.execOne(ctx, fmt.Sprintf("module %d", m.ModuleID), UpdateModule,
		m.ModuleID, m.Title, m.Description, uuidToPgtype(m.ModuleManager1UUID), uuidPtrToPgtype(m.ModuleManager2UUID),
		m.Activated, m.Closed, m.Successful, m.TemporaryLocked,
		timeToPgtype(m.ModifiedDate), uuidToPgtype(m.ModifiedByUUID))
}

func (d *dbTx) ListModules(ctx context.Context, filter storage.ModuleFilter) ([]models.Module, error) {
	ids := filter.IDs
	if ids == nil {
		ids = []int64{}
	}
	rows, err := d.tx.Query(ctx, ListModules, filter.OnlyActive, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *dbTx) InsertModuleStatus(ctx context.Context, st models.ModuleStatus) (int64, error) {
	var id int64
	err := d.tx.QueryRow(ctx, InsertModuleStatus,
		st.ModuleID, string(st.Status), timeToPgtype(st.CreatedDate), uuidToPgtype(st.CreatedByUUID),
	).Scan(&id)
	if err != nil {
		return 0, apperrors.FromPG(fmt.Errorf("insert module status: %w", err), "module status")
	}
	return id, nil
}

func (d *dbTx) ListModuleStatuses(ctx context.Context, moduleID int64) ([]models.ModuleStatus, error) {
	rows, err := d.tx.Query(ctx, ListModuleStatuses, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ModuleStatus
	for rows.Next() {
		var (
			st        models.ModuleStatus
			status    string
			created   pgtype.Timestamp
			createdBy pgtype.UUID
		)
		if err := rows.Scan(&st.ID, &st.ModuleID, &status, &created, &createdBy); err != nil {
			return nil, err
		}
		st.Status = models.StatusCode(status)
		st.CreatedDate = created.Time
		st.CreatedByUUID = pgtypeToUUIDValue(createdBy)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (d *dbTx) GetContext(ctx context.Context, moduleID int64, code string) (models.ModuleObjectContext, error) {
	c, err := scanContext(d.tx.QueryRow(ctx, GetContext, moduleID, code))
	if err != nil {
		return models.ModuleObjectContext{}, notFound(err, "object %s in module %d", code, moduleID)
	}
	return c, nil
}

func (d *dbTx) LockContext(ctx context.Context, moduleID int64, code string) (models.ModuleObjectContext, error) {
	c, err := scanContext(d.tx.QueryRow(ctx, LockContext, moduleID, code))
	if err != nil {
		return models.ModuleObjectContext{}, notFound(err, "object %s in module %d", code, moduleID)
	}
	return c, nil
}

func (d *dbTx) InsertContext(ctx context.Context, c models.ModuleObjectContext) error {
	return d.exec(ctx, fmt.Sprintf("object %s in module %d", c.Code, c.ModuleID), InsertContext,
		c.ModuleID, c.Code, c.ObjectType, c.ObjectID, string(c.Action), c.Explanation, c.Conclusion,
		uuidPtrToPgtype(c.OriginalAdjustOn), c.Hidden,
		timeToPgtype(c.CreatedDate), uuidToPgtype(c.CreatedByUUID), timeToPgtype(c.ModifiedDate), uuidToPgtype(c.ModifiedByUUID))
}

func (d *dbTx) UpdateContext(ctx context.Context, c models.ModuleObjectContext) error {
	return d.execOne(ctx, fmt.Sprintf("object %s in module %d", c.Code, c.ModuleID), UpdateContext,
		c.ModuleID, c.Code, string(c.Action), c.Explanation, c.Conclusion,
		uuidPtrToPgtype(c.OriginalAdjustOn), c.Hidden,
		timeToPgtype(c.ModifiedDate), uuidToPgtype(c.ModifiedByUUID))
}

func (d *dbTx) ListContexts(ctx context.Context, moduleID int64, includeHidden bool) ([]models.ModuleObjectContext, error) {
	rows, err := d.tx.Query(ctx, ListContexts, moduleID, includeHidden)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ModuleObjectContext
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *dbTx) InsertDraft(ctx context.Context, m models.ModuleObjectVersion) error {
	args, err := versionArgs(m.ObjectVersion)
	if err != nil {
		return err
	}
	args = append(args, m.ModuleID, m.Deleted)
	return d.exec(ctx, fmt.Sprintf("draft of %s in module %d", m.Code, m.ModuleID), InsertDraft, args...)
}

func (d *dbTx) ResolveDrafts(ctx context.Context, q storage.DraftQuery) ([]models.ModuleObjectVersion, error) {
	rows, err := d.tx.Query(ctx, ResolveDrafts, q.ModuleID, q.Code, timeToPgtype(q.At), q.Mode == lineage.Valid)
	if err != nil {
		return nil, err
	}
	return scanDrafts(rows)
}

func (d *dbTx) ListDrafts(ctx context.Context, moduleID int64, code string) ([]models.ModuleObjectVersion, error) {
	rows, err := d.tx.Query(ctx, ListDrafts, moduleID, code)
	if err != nil {
		return nil, err
	}
	return scanDrafts(rows)
}

func (d *dbTx) LatestDraftModified(ctx context.Context, moduleID int64, code string) (time.Time, error) {
	return d.latest(ctx, LatestDraftModified, moduleID, code)
}

func (d *dbTx) LockRelationPair(ctx context.Context, fromCode, toCode string) error {
	if _, err := d.tx.Exec(ctx, LockRelationPair, fromCode, toCode); err != nil {
		return fmt.Errorf("lock relation %s/%s: %w", fromCode, toCode, err)
	}
	return nil
}

func (d *dbTx) GetRelation(ctx context.Context, fromCode, toCode string) (models.AcknowledgedRelation, error) {
	r, err := scanRelation(d.tx.QueryRow(ctx, GetRelation, fromCode, toCode))
	if err != nil {
		return models.AcknowledgedRelation{}, notFound(err, "relation between %s and %s", fromCode, toCode)
	}
	return r, nil
}

func (d *dbTx) InsertRelation(ctx context.Context, r models.AcknowledgedRelation) error {
	return d.exec(ctx, fmt.Sprintf("relation %s/%s", r.FromCode, r.ToCode), InsertRelation,
		r.FromCode, r.ToCode, r.Version, r.RequestedByCode,
		timePtrToPgtype(r.FromAcknowledgedDate), uuidPtrToPgtype(r.FromAcknowledgedByUUID), r.FromTitle, r.FromExplanation,
		timePtrToPgtype(r.ToAcknowledgedDate), uuidPtrToPgtype(r.ToAcknowledgedByUUID), r.ToTitle, r.ToExplanation,
		timePtrToPgtype(r.Denied), timePtrToPgtype(r.DeletedAt),
		timeToPgtype(r.CreatedDate), uuidToPgtype(r.CreatedByUUID), timeToPgtype(r.ModifiedDate), uuidToPgtype(r.ModifiedByUUID))
}

func (d *dbTx) UpdateRelation(ctx context.Context, r models.AcknowledgedRelation) error {
	return d.execOne(ctx, fmt.Sprintf("relation %s/%s version %d", r.FromCode, r.ToCode, r.Version), UpdateRelation,
		r.FromCode, r.ToCode, r.Version,
		timePtrToPgtype(r.FromAcknowledgedDate), uuidPtrToPgtype(r.FromAcknowledgedByUUID), r.FromTitle, r.FromExplanation,
		timePtrToPgtype(r.ToAcknowledgedDate), uuidPtrToPgtype(r.ToAcknowledgedByUUID), r.ToTitle, r.ToExplanation,
		timePtrToPgtype(r.Denied), timePtrToPgtype(r.DeletedAt),
		timeToPgtype(r.ModifiedDate), uuidToPgtype(r.ModifiedByUUID))
}

func (d *dbTx) ListRelations(ctx context.Context, code string) ([]models.AcknowledgedRelation, error) {
	rows, err := d.tx.Query(ctx, ListRelations, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AcknowledgedRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
