package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/lineage"
	"f0oster/lineage/models"
	"f0oster/lineage/storage"

	"github.com/google/uuid"
)

func (t *transaction) GetStatic(_ context.Context, code string) (models.ObjectStatic, error) {
	static, ok := t.state.statics[code]
	if !ok {
		return models.ObjectStatic{}, apperrors.NotFound("object %s", code)
	}
	return static, nil
}

// LockStatic is a plain read: transactions are already serialised.
func (t *transaction) LockStatic(ctx context.Context, code string) (models.ObjectStatic, error) {
	return t.GetStatic(ctx, code)
}

func (t *transaction) InsertStatic(_ context.Context, static models.ObjectStatic) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.state.statics[static.Code]; exists {
		return apperrors.Conflict("object %s already exists", static.Code)
	}
	for _, s := range t.state.statics {
		if s.ObjectType == static.ObjectType && s.ObjectID == static.ObjectID {
			return apperrors.Conflict("object %s-%d already exists", static.ObjectType, static.ObjectID)
		}
	}
	t.state.statics[static.Code] = static
	return nil
}

func (t *transaction) UpdateCachedTitle(_ context.Context, code, title string) error {
	if err := t.writable(); err != nil {
		return err
	}
	static, ok := t.state.statics[code]
	if !ok {
		return apperrors.NotFound("object %s", code)
	}
	static.CachedTitle = title
	t.state.statics[code] = static
	return nil
}

func (t *transaction) NextObjectID(_ context.Context, objectType string) (int64, error) {
	var highest int64
	for _, s := range t.state.statics {
		if s.ObjectType == objectType && s.ObjectID > highest {
			highest = s.ObjectID
		}
	}
	return highest + 1, nil
}

func (t *transaction) InsertVersion(_ context.Context, v models.ObjectVersion) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.statics[v.Code]; !ok {
		return apperrors.IntegrityViolation("version references unknown object %s", v.Code)
	}
	for _, existing := range t.state.versions {
		if existing.UUID == v.UUID {
			return apperrors.Conflict("version %s already exists", v.UUID)
		}
		if existing.Code == v.Code && existing.ModifiedDate.Equal(v.ModifiedDate) {
			return apperrors.Conflict("version of %s modified at %s already exists", v.Code, v.ModifiedDate)
		}
	}
	v.Payload = v.Payload.Clone()
	t.state.versions = append(t.state.versions, v)
	return nil
}

func (t *transaction) GetVersion(_ context.Context, id uuid.UUID) (models.ObjectVersion, error) {
	for _, v := range t.state.versions {
		if v.UUID == id {
			v.Payload = v.Payload.Clone()
			return v, nil
		}
	}
	return models.ObjectVersion{}, apperrors.NotFound("version %s", id)
}

func (t *transaction) ListVersions(_ context.Context, code string) ([]models.ObjectVersion, error) {
	var out []models.ObjectVersion
	for _, v := range t.state.versions {
		if v.Code == code {
			v.Payload = v.Payload.Clone()
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b models.ObjectVersion) int {
		if lineage.Newer(a, b) {
			return 1
		}
		if lineage.Newer(b, a) {
			return -1
		}
		return 0
	})
	return out, nil
}

func (t *transaction) ResolveVersions(_ context.Context, q storage.VersionQuery) ([]models.ObjectVersion, error) {
	var rows []models.ObjectVersion
	for _, v := range t.state.versions {
		if q.Code != "" && v.Code != q.Code {
			continue
		}
		if q.ObjectType != "" && v.ObjectType != q.ObjectType {
			continue
		}
		v.Payload = v.Payload.Clone()
		rows = append(rows, v)
	}
	return lineage.Resolve(rows, q.At, q.Mode, lineage.ByCode[models.ObjectVersion]), nil
}

func (t *transaction) LatestModified(_ context.Context, code string) (time.Time, error) {
	var latest time.Time
	for _, v := range t.state.versions {
		if v.Code == code && v.ModifiedDate.After(latest) {
			latest = v.ModifiedDate
		}
	}
	return latest, nil
}

func (t *transaction) InsertModule(_ context.Context, m models.Module) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	m.ModuleID = t.state.nextModuleID
	t.state.nextModuleID++
	t.state.modules[m.ModuleID] = m
	return m.ModuleID, nil
}

func (t *transaction) GetModule(_ context.Context, moduleID int64) (models.Module, error) {
	m, ok := t.state.modules[moduleID]
	if !ok {
		return models.Module{}, apperrors.NotFound("module %d", moduleID)
	}
	return m, nil
}

func (t *transaction) LockModule(ctx context.Context, moduleID int64) (models.Module, error) {
	return t.GetModule(ctx, moduleID)
}

func (t *transaction) UpdateModule(_ context.Context, m models.Module) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.modules[m.ModuleID]; !ok {
		return apperrors.NotFound("module %d", m.ModuleID)
	}
	t.state.modules[m.ModuleID] = m
	return nil
}

func (t *transaction) ListModules(_ context.Context, filter storage.ModuleFilter) ([]models.Module, error) {
	var out []models.Module
	for _, m := range t.state.modules {
		if filter.OnlyActive && (!m.Activated || m.Closed) {
			continue
		}
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, m.ModuleID) {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b models.Module) int {
		return cmp.Compare(a.ModuleID, b.ModuleID)
	})
	return out, nil
}

func (t *transaction) InsertModuleStatus(_ context.Context, st models.ModuleStatus) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	if _, ok := t.state.modules[st.ModuleID]; !ok {
		return 0, apperrors.IntegrityViolation("status references unknown module %d", st.ModuleID)
	}
	st.ID = t.state.nextStatusID
	t.state.nextStatusID++
	t.state.statuses = append(t.state.statuses, st)
	return st.ID, nil
}

func (t *transaction) ListModuleStatuses(_ context.Context, moduleID int64) ([]models.ModuleStatus, error) {
	var out []models.ModuleStatus
	for _, st := range t.state.statuses {
		if st.ModuleID == moduleID {
			out = append(out, st)
		}
	}
	slices.SortFunc(out, func(a, b models.ModuleStatus) int {
		if c := a.CreatedDate.Compare(b.CreatedDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *transaction) GetContext(_ context.Context, moduleID int64, code string) (models.ModuleObjectContext, error) {
	c, ok := t.state.contexts[contextKey{moduleID, code}]
	if !ok {
		return models.ModuleObjectContext{}, apperrors.NotFound("object %s in module %d", code, moduleID)
	}
	return c, nil
}

func (t *transaction) LockContext(ctx context.Context, moduleID int64, code string) (models.ModuleObjectContext, error) {
	return t.GetContext(ctx, moduleID, code)
}

func (t *transaction) InsertContext(_ context.Context, c models.ModuleObjectContext) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.modules[c.ModuleID]; !ok {
		return apperrors.IntegrityViolation("context references unknown module %d", c.ModuleID)
	}
	if _, ok := t.state.statics[c.Code]; !ok {
		return apperrors.IntegrityViolation("context references unknown object %s", c.Code)
	}
	key := contextKey{c.ModuleID, c.Code}
	if _, exists := t.state.contexts[key]; exists {
		return apperrors.Conflict("object %s is already part of module %d", c.Code, c.ModuleID)
	}
	t.state.contexts[key] = c
	return nil
}

func (t *transaction) UpdateContext(_ context.Context, c models.ModuleObjectContext) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := contextKey{c.ModuleID, c.Code}
	if _, ok := t.state.contexts[key]; !ok {
		return apperrors.NotFound("object %s in module %d", c.Code, c.ModuleID)
	}
	t.state.contexts[key] = c
	return nil
}

func (t *transaction) ListContexts(_ context.Context, moduleID int64, includeHidden bool) ([]models.ModuleObjectContext, error) {
	var out []models.ModuleObjectContext
	for key, c := range t.state.contexts {
		if key.moduleID != moduleID || (c.Hidden && !includeHidden) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b models.ModuleObjectContext) int {
		return cmp.Compare(a.Code, b.Code)
	})
	return out, nil
}

func (t *transaction) InsertDraft(_ context.Context, d models.ModuleObjectVersion) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.contexts[contextKey{d.ModuleID, d.Code}]; !ok {
		return apperrors.IntegrityViolation("draft references unknown context %s in module %d", d.Code, d.ModuleID)
	}
	for _, existing := range t.state.drafts {
		if existing.UUID == d.UUID {
			return apperrors.Conflict("draft %s already exists", d.UUID)
		}
		if existing.ModuleID == d.ModuleID && existing.Code == d.Code && existing.ModifiedDate.Equal(d.ModifiedDate) {
			return apperrors.Conflict("draft of %s modified at %s already exists", d.Code, d.ModifiedDate)
		}
	}
	d.Payload = d.Payload.Clone()
	t.state.drafts = append(t.state.drafts, d)
	return nil
}

func (t *transaction) ResolveDrafts(_ context.Context, q storage.DraftQuery) ([]models.ModuleObjectVersion, error) {
	var rows []models.ModuleObjectVersion
	for _, d := range t.state.drafts {
		if q.ModuleID != 0 && d.ModuleID != q.ModuleID {
			continue
		}
		if q.Code != "" && d.Code != q.Code {
			continue
		}
		d.Payload = d.Payload.Clone()
		rows = append(rows, d)
	}
	if q.ModuleID == 0 {
		return lineage.Resolve(rows, q.At, q.Mode, lineage.ByModuleCode), nil
	}
	return lineage.Resolve(rows, q.At, q.Mode, lineage.ByCode[models.ModuleObjectVersion]), nil
}

func (t *transaction) ListDrafts(_ context.Context, moduleID int64, code string) ([]models.ModuleObjectVersion, error) {
	var out []models.ModuleObjectVersion
	for _, d := range t.state.drafts {
		if d.ModuleID == moduleID && d.Code == code {
			d.Payload = d.Payload.Clone()
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b models.ModuleObjectVersion) int {
		if lineage.Newer(a.ObjectVersion, b.ObjectVersion) {
			return 1
		}
		if lineage.Newer(b.ObjectVersion, a.ObjectVersion) {
			return -1
		}
		return 0
	})
	return out, nil
}

func (t *transaction) LatestDraftModified(_ context.Context, moduleID int64, code string) (time.Time, error) {
	var latest time.Time
	for _, d := range t.state.drafts {
		if d.ModuleID == moduleID && d.Code == code && d.ModifiedDate.After(latest) {
			latest = d.ModifiedDate
		}
	}
	return latest, nil
}

func (t *transaction) LockRelationPair(_ context.Context, _, _ string) error {
	return nil
}

func (t *transaction) GetRelation(_ context.Context, fromCode, toCode string) (models.AcknowledgedRelation, error) {
	rows := t.state.relations[pairKey{fromCode, toCode}]
	if len(rows) == 0 {
		return models.AcknowledgedRelation{}, apperrors.NotFound("relation between %s and %s", fromCode, toCode)
	}
	return newestRelation(rows), nil
}

func (t *transaction) InsertRelation(_ context.Context, r models.AcknowledgedRelation) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, code := range []string{r.FromCode, r.ToCode, r.RequestedByCode} {
		if _, ok := t.state.statics[code]; !ok {
			return apperrors.IntegrityViolation("relation references unknown object %s", code)
		}
	}
	key := pairKey{r.FromCode, r.ToCode}
	for _, existing := range t.state.relations[key] {
		if existing.Version == r.Version {
			return apperrors.Conflict("relation %s/%s version %d already exists", r.FromCode, r.ToCode, r.Version)
		}
	}
	t.state.relations[key] = append(t.state.relations[key], r)
	return nil
}

func (t *transaction) UpdateRelation(_ context.Context, r models.AcknowledgedRelation) error {
	if err := t.writable(); err != nil {
		return err
	}
	rows := t.state.relations[pairKey{r.FromCode, r.ToCode}]
	for i := range rows {
		if rows[i].Version == r.Version {
			rows[i] = r
			return nil
		}
	}
	return apperrors.NotFound("relation %s/%s version %d", r.FromCode, r.ToCode, r.Version)
}

func (t *transaction) ListRelations(_ context.Context, code string) ([]models.AcknowledgedRelation, error) {
	var out []models.AcknowledgedRelation
	for key, rows := range t.state.relations {
		if key.from != code && key.to != code {
			continue
		}
		out = append(out, newestRelation(rows))
	}
	slices.SortFunc(out, func(a, b models.AcknowledgedRelation) int {
		if c := cmp.Compare(a.FromCode, b.FromCode); c != 0 {
			return c
		}
		return cmp.Compare(a.ToCode, b.ToCode)
	})
	return out, nil
}

func newestRelation(rows []models.AcknowledgedRelation) models.AcknowledgedRelation {
	newest := rows[0]
	for _, r := range rows[1:] {
		if r.Version > newest.Version {
			newest = r
		}
	}
	return newest
}
