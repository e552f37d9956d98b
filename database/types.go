package database

import (
	"encoding/json"
	"fmt"
	"time"

	"f0oster/lineage/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// versionRecord mirrors the shared columns of objects and module_objects.
type versionRecord struct {
	UUID           pgtype.UUID
	Code           string
	ObjectType     string
	ObjectID       int64
	AdjustOn       pgtype.UUID
	CreatedDate    pgtype.Timestamp
	CreatedByUUID  pgtype.UUID
	ModifiedDate   pgtype.Timestamp
	ModifiedByUUID pgtype.UUID
	StartValidity  pgtype.Timestamp
	EndValidity    pgtype.Timestamp
	Title          string
	Description    string
	Fields         []byte
}

func (r *versionRecord) targets() []any {
	return []any{
		&r.UUID, &r.Code, &r.ObjectType, &r.ObjectID, &r.AdjustOn,
		&r.CreatedDate, &r.CreatedByUUID, &r.ModifiedDate, &r.ModifiedByUUID,
		&r.StartValidity, &r.EndValidity, &r.Title, &r.Description, &r.Fields,
	}
}

func (r versionRecord) model() (models.ObjectVersion, error) {
	fields := map[string]any{}
	if len(r.Fields) > 0 {
		if err := json.Unmarshal(r.Fields, &fields); err != nil {
			return models.ObjectVersion{}, fmt.Errorf("unmarshal fields of %s: %w", r.Code, err)
		}
	}
	return models.ObjectVersion{
		UUID:           pgtypeToUUIDValue(r.UUID),
		Code:           r.Code,
		ObjectType:     r.ObjectType,
		ObjectID:       r.ObjectID,
		AdjustOn:       pgtypeToUUID(r.AdjustOn),
		CreatedDate:    r.CreatedDate.Time,
		CreatedByUUID:  pgtypeToUUIDValue(r.CreatedByUUID),
		ModifiedDate:   r.ModifiedDate.Time,
		ModifiedByUUID: pgtypeToUUIDValue(r.ModifiedByUUID),
		StartValidity:  pgtypeToTime(r.StartValidity),
		EndValidity:    pgtypeToTime(r.EndValidity),
		Payload: models.Payload{
			Title:       r.Title,
			Description: r.Description,
			Fields:      fields,
		},
	}, nil
}

// versionArgs returns the insert arguments in versionColumns order.
func versionArgs(v models.ObjectVersion) ([]any, error) {
	fields := v.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields of %s: %w", v.Code, err)
	}
	return []any{
		uuidToPgtype(v.UUID),
		v.Code,
		v.ObjectType,
		v.ObjectID,
		uuidPtrToPgtype(v.AdjustOn),
		timeToPgtype(v.CreatedDate),
		uuidToPgtype(v.CreatedByUUID),
		timeToPgtype(v.ModifiedDate),
		uuidToPgtype(v.ModifiedByUUID),
		timePtrToPgtype(v.StartValidity),
		timePtrToPgtype(v.EndValidity),
		v.Title,
		v.Description,
		fieldsJSON,
	}, nil
}

func scanVersions(rows pgx.Rows) ([]models.ObjectVersion, error) {
	defer rows.Close()
	var out []models.ObjectVersion
	for rows.Next() {
		var rec versionRecord
		if err := rows.Scan(rec.targets()...); err != nil {
			return nil, err
		}
		v, err := rec.model()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanDrafts(rows pgx.Rows) ([]models.ModuleObjectVersion, error) {
	defer rows.Close()
	var out []models.ModuleObjectVersion
	for rows.Next() {
		var (
			rec      versionRecord
			moduleID int64
			deleted  bool
		)
		if err := rows.Scan(append(rec.targets(), &moduleID, &deleted)...); err != nil {
			return nil, err
		}
		v, err := rec.model()
		if err != nil {
			return nil, err
		}
		out = append(out, models.ModuleObjectVersion{ObjectVersion: v, ModuleID: moduleID, Deleted: deleted})
	}
	return out, rows.Err()
}

func scanStatic(row pgx.Row) (models.ObjectStatic, error) {
	var (
		s        models.ObjectStatic
		one, two pgtype.UUID
	)
	if err := row.Scan(&s.Code, &s.ObjectType, &s.ObjectID, &one, &two, &s.CachedTitle); err != nil {
		return models.ObjectStatic{}, err
	}
	s.OwnerOneUUID = pgtypeToUUID(one)
	s.OwnerTwoUUID = pgtypeToUUID(two)
	return s, nil
}

func scanModule(row pgx.Row) (models.Module, error) {
	var (
		m                             models.Module
		manager1, manager2, createdBy pgtype.UUID
		modifiedBy                    pgtype.UUID
		created, modified             pgtype.Timestamp
	)
	err := row.Scan(
		&m.ModuleID, &m.Title, &m.Description, &manager1, &manager2,
		&m.Activated, &m.Closed, &m.Successful, &m.TemporaryLocked,
		&created, &createdBy, &modified, &modifiedBy,
	)
	if err != nil {
		return models.Module{}, err
	}
	m.ModuleManager1UUID = pgtypeToUUIDValue(manager1)
	m.ModuleManager2UUID = pgtypeToUUID(manager2)
	m.CreatedDate = created.Time
	m.CreatedByUUID = pgtypeToUUIDValue(createdBy)
	m.ModifiedDate = modified.Time
	m.ModifiedByUUID = pgtypeToUUIDValue(modifiedBy)
	return m, nil
}

func scanContext(row pgx.Row) (models.ModuleObjectContext, error) {
	var (
		c                     models.ModuleObjectContext
		action                string
		adjustOn              pgtype.UUID
		createdBy, modifiedBy pgtype.UUID
		created, modified     pgtype.Timestamp
	)
	err := row.Scan(
		&c.ModuleID, &c.Code, &c.ObjectType, &c.ObjectID, &action, &c.Explanation, &c.Conclusion,
		&adjustOn, &c.Hidden, &created, &createdBy, &modified, &modifiedBy,
	)
	if err != nil {
		return models.ModuleObjectContext{}, err
	}
	c.Action = models.ObjectAction(action)
	c.OriginalAdjustOn = pgtypeToUUID(adjustOn)
	c.CreatedDate = created.Time
	c.CreatedByUUID = pgtypeToUUIDValue(createdBy)
	c.ModifiedDate = modified.Time
	c.ModifiedByUUID = pgtypeToUUIDValue(modifiedBy)
	return c, nil
}

func scanRelation(row pgx.Row) (models.AcknowledgedRelation, error) {
	var (
		r                     models.AcknowledgedRelation
		fromAck, toAck        pgtype.Timestamp
		fromBy, toBy          pgtype.UUID
		denied, deletedAt     pgtype.Timestamp
		created, modified     pgtype.Timestamp
		createdBy, modifiedBy pgtype.UUID
	)
	err := row.Scan(
		&r.FromCode, &r.ToCode, &r.Version, &r.RequestedByCode,
		&fromAck, &fromBy, &r.FromTitle, &r.FromExplanation,
		&toAck, &toBy, &r.ToTitle, &r.ToExplanation,
		&denied, &deletedAt, &created, &createdBy, &modified, &modifiedBy,
	)
	if err != nil {
		return models.AcknowledgedRelation{}, err
	}
	r.FromAcknowledgedDate = pgtypeToTime(fromAck)
	r.FromAcknowledgedByUUID = pgtypeToUUID(fromBy)
	r.ToAcknowledgedDate = pgtypeToTime(toAck)
	r.ToAcknowledgedByUUID = pgtypeToUUID(toBy)
	r.Denied = pgtypeToTime(denied)
	r.DeletedAt = pgtypeToTime(deletedAt)
	r.CreatedDate = created.Time
	r.CreatedByUUID = pgtypeToUUIDValue(createdBy)
	r.ModifiedDate = modified.Time
	r.ModifiedByUUID = pgtypeToUUIDValue(modifiedBy)
	return r, nil
}

// Helper functions for pgtype conversion

func uuidToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func uuidPtrToPgtype(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return uuidToPgtype(*id)
}

func pgtypeToUUID(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	result := uuid.UUID(id.Bytes)
	return &result
}

func pgtypeToUUIDValue(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

// timestamp columns carry no zone; everything is stored as UTC wall time.
func timeToPgtype(t time.Time) pgtype.Timestamp {
	return pgtype.Timestamp{Time: t.UTC(), Valid: true}
}

func timePtrToPgtype(t *time.Time) pgtype.Timestamp {
	if t == nil {
		return pgtype.Timestamp{}
	}
	return timeToPgtype(*t)
}

func pgtypeToTime(t pgtype.Timestamp) *time.Time {
	if !t.Valid {
		return nil
	}
	result := t.Time
	return &result
}
