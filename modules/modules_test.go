package modules_test

import (
	"context"
	"errors"
	"testing"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/events"
	"f0oster/lineage/lineage"
	"f0oster/lineage/models"
	"f0oster/lineage/modules"
	"f0oster/lineage/permissions"
	"f0oster/lineage/storage"
	"f0oster/lineage/storage/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteEditCreatesNewVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v1 := f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))

	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{
		Code:   "ambitie-7",
		Action: models.ActionEdit,
	})
	require.NoError(t, err)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "Ambitie zeven herzien"})
	require.NoError(t, err)
	f.readyForCompletion(t, module.ModuleID)

	f.clock.Set(date(2024, 6, 1))
	result, err := f.svc.Complete(ctx, f.manager, module.ModuleID, nil)
	require.NoError(t, err)
	require.Len(t, result.Commits, 1)
	assert.True(t, result.Commits[0].TitleRefreshed)
	assert.True(t, result.Module.Closed)
	assert.True(t, result.Module.Successful)
	assert.False(t, result.Module.TemporaryLocked)

	history := f.versions(t, "ambitie-7")
	require.Len(t, history, 2)
	assert.Equal(t, v1, history[0], "the previous version is never modified")

	v2 := history[1]
	require.NotNil(t, v2.StartValidity)
	assert.Equal(t, date(2024, 6, 1), *v2.StartValidity)
	assert.Nil(t, v2.EndValidity)
	require.NotNil(t, v2.AdjustOn)
	assert.Equal(t, v1.UUID, *v2.AdjustOn)
	assert.Equal(t, "Ambitie zeven herzien", v2.Title)
	assert.Equal(t, v1.Fields, v2.Fields)
	assert.Equal(t, f.manager.UUID, v2.ModifiedByUUID)

	assert.Equal(t, "Ambitie zeven herzien", f.static(t, "ambitie-7").CachedTitle)

	current, err := f.snapshots.ResolveLatest(ctx, "ambitie-7", date(2024, 6, 2), lineage.Valid)
	require.NoError(t, err)
	assert.Equal(t, v2.UUID, current.UUID)
	before, err := f.snapshots.ResolveLatest(ctx, "ambitie-7", date(2024, 5, 31), lineage.Valid)
	require.NoError(t, err)
	assert.Equal(t, v1.UUID, before.UUID)

	overview, err := f.svc.Overview(ctx, module.ModuleID)
	require.NoError(t, err)
	require.NotNil(t, overview.Status)
	assert.Equal(t, models.StatusModuleAfgerond, overview.Status.Status)

	var completed []events.Event
	for _, evt := range f.recorder.Events() {
		if evt.Type == events.ModuleCompleted {
			completed = append(completed, evt)
		}
	}
	require.Len(t, completed, 1)
	assert.Equal(t, []string{"ambitie-7"}, completed[0].Codes)
	assert.Equal(t, module.ModuleID, completed[0].ModuleID)
}

func TestCompleteTerminateEndsLineage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))

	first := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, first.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)
	f.readyForCompletion(t, first.ModuleID)
	f.clock.Set(date(2024, 6, 1))
	_, err = f.svc.Complete(ctx, f.manager, first.ModuleID, nil)
	require.NoError(t, err)
	v2 := f.versions(t, "ambitie-7")[1]

	f.clock.Set(date(2024, 7, 1))
	second := f.activeModule(t)
	_, err = f.svc.AddExistingObject(ctx, f.manager, second.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionTerminate})
	require.NoError(t, err)
	f.readyForCompletion(t, second.ModuleID)
	_, err = f.svc.Complete(ctx, f.manager, second.ModuleID, nil)
	require.NoError(t, err)

	history := f.versions(t, "ambitie-7")
	require.Len(t, history, 3)
	v3 := history[2]
	require.NotNil(t, v3.StartValidity)
	require.NotNil(t, v3.EndValidity)
	assert.Equal(t, date(2024, 7, 1), *v3.StartValidity)
	assert.Equal(t, *v3.StartValidity, *v3.EndValidity)
	require.NotNil(t, v3.AdjustOn)
	assert.Equal(t, v2.UUID, *v3.AdjustOn)

	_, err = f.snapshots.ResolveLatest(ctx, "ambitie-7", date(2024, 7, 2), lineage.Valid)
	assert.True(t, apperrors.IsNotFound(err), "terminated lineage has no valid version")

	latest, err := f.snapshots.ResolveLatest(ctx, "ambitie-7", date(2024, 7, 2), lineage.Latest)
	require.NoError(t, err)
	assert.Equal(t, v3.UUID, latest.UUID)
}

func TestLockSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	f.seedVersion(t, "ambitie-8", "Ambitie acht", date(2020, 1, 1))
	module := f.activeModule(t)

	_, err := f.svc.PatchStatus(ctx, f.manager, module.ModuleID, models.StatusOntwerpGS)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "status changes need the lock")

	_, err = f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)

	f.setLocked(t, module.ModuleID, true)

	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "Gewijzigd"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-8", Action: models.ActionEdit})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = f.svc.AddNewObject(ctx, f.manager, module.ModuleID, modules.AddNewObjectInput{ObjectType: "ambitie", Title: "Nieuw"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	err = f.svc.RemoveObject(ctx, f.manager, module.ModuleID, "ambitie-7")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = f.svc.EditObjectContext(ctx, f.manager, module.ModuleID, "ambitie-7", modules.EditContextInput{Explanation: ptr("uitleg")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	st, err := f.svc.PatchStatus(ctx, f.manager, module.ModuleID, models.StatusOntwerpGS)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOntwerpGS, st.Status)

	f.setLocked(t, module.ModuleID, false)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "Gewijzigd"})
	assert.NoError(t, err)
}

func TestPatchStatusRejectsInternalStatus(t *testing.T) {
	f := newFixture(t)
	module := f.activeModule(t)
	f.setLocked(t, module.ModuleID, true)

	_, err := f.svc.PatchStatus(context.Background(), f.manager, module.ModuleID, models.StatusModuleAfgerond)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPatchStatusRequiresActivation(t *testing.T) {
	f := newFixture(t)
	module := f.createModule(t)
	f.setLocked(t, module.ModuleID, true)

	_, err := f.svc.PatchStatus(context.Background(), f.manager, module.ModuleID, models.StatusOntwerpGS)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestCompleteRequiresVastgesteld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)

	f.setLocked(t, module.ModuleID, true)
	_, err = f.svc.PatchStatus(ctx, f.manager, module.ModuleID, models.StatusDefinitiefOntwerpPS)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.manager, module.ModuleID, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	overview, err := f.svc.Overview(ctx, module.ModuleID)
	require.NoError(t, err)
	assert.False(t, overview.Module.Closed)
	assert.Equal(t, models.StatusDefinitiefOntwerpPS, overview.Status.Status)
	assert.Len(t, f.versions(t, "ambitie-7"), 1)
}

func TestCompleteRequiresLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	module := f.activeModule(t)
	f.readyForCompletion(t, module.ModuleID)
	f.setLocked(t, module.ModuleID, false)

	_, err := f.svc.Complete(ctx, f.manager, module.ModuleID, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestCompleteWithFutureStartKeepsCachedTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "Toekomstige titel"})
	require.NoError(t, err)
	f.readyForCompletion(t, module.ModuleID)

	f.clock.Set(date(2024, 6, 1))
	result, err := f.svc.Complete(ctx, f.manager, module.ModuleID, ptr(date(2025, 1, 1)))
	require.NoError(t, err)
	require.Len(t, result.Commits, 1)
	assert.False(t, result.Commits[0].TitleRefreshed)
	assert.Equal(t, date(2025, 1, 1), *result.Commits[0].Version.StartValidity)

	assert.Equal(t, "Ambitie zeven", f.static(t, "ambitie-7").CachedTitle)

	current, err := f.snapshots.ResolveLatest(ctx, "ambitie-7", date(2024, 6, 2), lineage.Valid)
	require.NoError(t, err)
	assert.Equal(t, "Ambitie zeven", current.Title)
	future, err := f.snapshots.ResolveLatest(ctx, "ambitie-7", date(2025, 1, 2), lineage.Valid)
	require.NoError(t, err)
	assert.Equal(t, "Toekomstige titel", future.Title)
}

func TestPatchAppendsExactlyOneDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v1 := f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)

	drafts, err := f.svc.DraftHistory(ctx, module.ModuleID, "ambitie-7")
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	seeded := drafts[0]
	assert.Equal(t, v1.Payload, seeded.Payload)
	require.NotNil(t, seeded.AdjustOn)
	assert.Equal(t, v1.UUID, *seeded.AdjustOn)

	patched, err := f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "Nieuwe titel", "Weblink": nil})
	require.NoError(t, err)
	again, err := f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Description": "Nieuwe beschrijving"})
	require.NoError(t, err)

	drafts, err = f.svc.DraftHistory(ctx, module.ModuleID, "ambitie-7")
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	assert.Equal(t, seeded, drafts[0], "earlier drafts are never modified")
	assert.Equal(t, seeded.UUID, *drafts[1].AdjustOn)
	assert.Equal(t, patched.UUID, drafts[1].UUID)
	assert.Equal(t, patched.UUID, *drafts[2].AdjustOn)
	assert.Equal(t, again.UUID, drafts[2].UUID)
	assert.True(t, drafts[2].ModifiedDate.After(drafts[1].ModifiedDate))

	assert.Equal(t, "Nieuwe titel", again.Title)
	assert.Equal(t, "Nieuwe beschrijving", again.Description)
	assert.NotContains(t, again.Fields, "Weblink")
}

func TestPatchedNestedFieldsAreNotShared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)

	tags := []any{"a"}
	patched, err := f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Tags": tags})
	require.NoError(t, err)

	tags[0] = "changed by caller"
	patched.Fields["Tags"].([]any)[0] = "changed in result"

	drafts, err := f.svc.DraftHistory(ctx, module.ModuleID, "ambitie-7")
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, []any{"a"}, drafts[1].Fields["Tags"])

	drafts[1].Fields["Tags"].([]any)[0] = "changed in history"
	again, err := f.svc.DraftHistory(ctx, module.ModuleID, "ambitie-7")
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, again[1].Fields["Tags"])
}

func TestPatchTitleRefreshesCacheOfUnpublishedObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)

	created, err := f.svc.AddNewObject(ctx, f.manager, module.ModuleID, modules.AddNewObjectInput{ObjectType: "ambitie", Title: "Nieuwe ambitie"})
	require.NoError(t, err)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, created.Code, map[string]any{"Title": "Hernoemde ambitie"})
	require.NoError(t, err)
	assert.Equal(t, "Hernoemde ambitie", f.static(t, created.Code).CachedTitle)

	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, created.Code, map[string]any{"Description": "alleen omschrijving"})
	require.NoError(t, err)
	assert.Equal(t, "Hernoemde ambitie", f.static(t, created.Code).CachedTitle)

	// published lineages keep the title of their main version until completion
	_, err = f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "Concept titel"})
	require.NoError(t, err)
	assert.Equal(t, "Ambitie zeven", f.static(t, "ambitie-7").CachedTitle)
}

func TestListModules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	idle := f.createModule(t)
	active := f.activeModule(t)
	closed := f.activeModule(t)
	require.NoError(t, f.svc.Close(ctx, f.manager, closed.ModuleID))

	all, err := f.svc.ListModules(ctx, storage.ModuleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{idle.ModuleID, active.ModuleID, closed.ModuleID},
		[]int64{all[0].Module.ModuleID, all[1].Module.ModuleID, all[2].Module.ModuleID})
	require.NotNil(t, all[0].Status)
	assert.Equal(t, models.StatusNietActief, all[0].Status.Status)
	require.NotNil(t, all[1].Status)
	assert.Equal(t, models.StatusOntwerpGSConcept, all[1].Status.Status)
	require.NotNil(t, all[2].Status)
	assert.Equal(t, models.StatusGesloten, all[2].Status.Status)

	onlyActive, err := f.svc.ListModules(ctx, storage.ModuleFilter{OnlyActive: true})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ModuleID, onlyActive[0].Module.ModuleID)

	picked, err := f.svc.ListModules(ctx, storage.ModuleFilter{IDs: []int64{idle.ModuleID}})
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, idle.ModuleID, picked[0].Module.ModuleID)

	none, err := f.svc.ListModules(ctx, storage.ModuleFilter{IDs: []int64{999}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPatchRejectsReservedAndEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)

	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"UUID": uuid.NewString()})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-8", map[string]any{"Title": "x"})
	assert.True(t, apperrors.IsNotFound(err))

	drafts, err := f.svc.DraftHistory(ctx, module.ModuleID, "ambitie-7")
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
}

func TestAddExistingObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)

	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-404", Action: models.ActionEdit})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionCreate})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	added, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit, Explanation: "herzien"})
	require.NoError(t, err)
	assert.Equal(t, "ambitie", added.ObjectType)
	assert.EqualValues(t, 7, added.ObjectID)

	_, err = f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRemoveAndReAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)

	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "Weggegooid"})
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveObject(ctx, f.manager, module.ModuleID, "ambitie-7"))

	overview, err := f.svc.Overview(ctx, module.ModuleID)
	require.NoError(t, err)
	assert.Empty(t, overview.Contexts)
	assert.Empty(t, overview.Drafts)

	err = f.svc.RemoveObject(ctx, f.manager, module.ModuleID, "ambitie-7")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "x"})
	assert.True(t, apperrors.IsNotFound(err))

	readded, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionTerminate})
	require.NoError(t, err)
	assert.False(t, readded.Hidden)
	assert.Equal(t, models.ActionTerminate, readded.Action)

	drafts, err := f.svc.DraftHistory(ctx, module.ModuleID, "ambitie-7")
	require.NoError(t, err)
	require.Len(t, drafts, 4)
	assert.True(t, drafts[2].Deleted)
	assert.False(t, drafts[3].Deleted)
	assert.Equal(t, "Ambitie zeven", drafts[3].Title, "re-adding starts from the main timeline again")
}

func TestCompleteSkipsRemovedObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	f.seedVersion(t, "ambitie-8", "Ambitie acht", date(2020, 1, 1))
	module := f.activeModule(t)
	for _, code := range []string{"ambitie-7", "ambitie-8"} {
		_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: code, Action: models.ActionEdit})
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.RemoveObject(ctx, f.manager, module.ModuleID, "ambitie-8"))
	f.readyForCompletion(t, module.ModuleID)

	result, err := f.svc.Complete(ctx, f.manager, module.ModuleID, nil)
	require.NoError(t, err)
	require.Len(t, result.Commits, 1)
	assert.Equal(t, "ambitie-7", result.Commits[0].Version.Code)
	assert.Len(t, f.versions(t, "ambitie-7"), 2)
	assert.Len(t, f.versions(t, "ambitie-8"), 1)
}

func TestAddNewObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)

	_, err := f.svc.AddNewObject(ctx, f.manager, module.ModuleID, modules.AddNewObjectInput{ObjectType: "werkingsgebied", Title: "Gebied"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.svc.AddNewObject(ctx, f.manager, module.ModuleID, modules.AddNewObjectInput{ObjectType: "ambitie", Title: "ab"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	static, err := f.svc.AddNewObject(ctx, f.manager, module.ModuleID, modules.AddNewObjectInput{ObjectType: "ambitie", Title: "Nieuwe ambitie"})
	require.NoError(t, err)
	assert.Equal(t, "ambitie-8", static.Code)
	assert.EqualValues(t, 8, static.ObjectID)
	assert.Equal(t, "Nieuwe ambitie", f.static(t, "ambitie-8").CachedTitle)

	other, err := f.svc.AddNewObject(ctx, f.manager, module.ModuleID, modules.AddNewObjectInput{ObjectType: "maatregel", Title: "Eerste maatregel"})
	require.NoError(t, err)
	assert.Equal(t, "maatregel-1", other.Code)

	_, err = f.snapshots.ResolveLatest(ctx, "ambitie-8", f.clock.Now(), lineage.Latest)
	assert.True(t, apperrors.IsNotFound(err), "the first version only exists in the module")

	f.readyForCompletion(t, module.ModuleID)
	f.clock.Set(date(2024, 6, 1))
	_, err = f.svc.Complete(ctx, f.manager, module.ModuleID, nil)
	require.NoError(t, err)

	history := f.versions(t, "ambitie-8")
	require.Len(t, history, 1)
	assert.Nil(t, history[0].AdjustOn)
	assert.Equal(t, date(2024, 6, 1), *history[0].StartValidity)
	assert.Equal(t, "Nieuwe ambitie", history[0].Title)
}

func TestEditObjectContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)
	created, err := f.svc.AddNewObject(ctx, f.manager, module.ModuleID, modules.AddNewObjectInput{ObjectType: "beleidsdoel", Title: "Doel"})
	require.NoError(t, err)

	edited, err := f.svc.EditObjectContext(ctx, f.manager, module.ModuleID, "ambitie-7", modules.EditContextInput{
		Action:     ptr(models.ActionTerminate),
		Conclusion: ptr("vervalt"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionTerminate, edited.Action)
	assert.Equal(t, "vervalt", edited.Conclusion)

	_, err = f.svc.EditObjectContext(ctx, f.manager, module.ModuleID, "ambitie-7", modules.EditContextInput{Action: ptr(models.ActionCreate)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.svc.EditObjectContext(ctx, f.manager, module.ModuleID, created.Code, modules.EditContextInput{Action: ptr(models.ActionEdit)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDiff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v1 := f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "Ambitie zeven herzien"})
	require.NoError(t, err)

	out, err := f.svc.Diff(ctx, module.ModuleID, "ambitie-7")
	require.NoError(t, err)
	require.NotNil(t, out.Base)
	assert.Equal(t, v1.UUID, out.Base.UUID)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, "Title", out.Changes[0].Name)
	assert.Equal(t, "Ambitie zeven", out.Changes[0].Old)
	assert.Equal(t, "Ambitie zeven herzien", out.Changes[0].New)
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.createModule(t)

	colleague := permissions.Actor{UUID: uuid.New(), Role: permissions.RoleBehandelendAmbtenaar}
	_, err := f.svc.Activate(ctx, colleague, module.ModuleID)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied, "only managers activate")

	_, err = f.svc.Activate(ctx, f.manager, module.ModuleID)
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, f.manager, module.ModuleID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	reader := permissions.Actor{UUID: uuid.New(), Role: "Lezer"}
	_, err = f.svc.AddExistingObject(ctx, reader, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	_, err = f.svc.CreateModule(ctx, reader, modules.CreateModuleInput{Title: "Module", Description: "Beschrijving", ModuleManager1UUID: reader.UUID})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, err = f.svc.AddExistingObject(ctx, colleague, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	assert.NoError(t, err, "the role grants adding objects")

	_, err = f.svc.EditModule(ctx, colleague, module.ModuleID, modules.EditModuleInput{Title: ptr("Andere titel")})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestModuleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateModule(ctx, f.manager, modules.CreateModuleInput{Title: "ab", Description: "Beschrijving", ModuleManager1UUID: f.manager.UUID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.svc.CreateModule(ctx, f.manager, modules.CreateModuleInput{Title: "Titel", Description: "Beschrijving"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.svc.CreateModule(ctx, f.manager, modules.CreateModuleInput{
		Title:              "Titel",
		Description:        "Beschrijving",
		ModuleManager1UUID: f.manager.UUID,
		ModuleManager2UUID: ptr(f.manager.UUID),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	module := f.createModule(t)
	_, err = f.svc.EditModule(ctx, f.manager, module.ModuleID, modules.EditModuleInput{Description: ptr("")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	overview, err := f.svc.Overview(ctx, module.ModuleID)
	require.NoError(t, err)
	assert.Equal(t, "Module voor de herziening", overview.Module.Description)
	require.NotNil(t, overview.Status)
	assert.Equal(t, models.StatusNietActief, overview.Status.Status)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	module := f.activeModule(t)
	_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: "ambitie-7", Action: models.ActionEdit})
	require.NoError(t, err)

	sponsor := permissions.Actor{UUID: uuid.New(), Role: permissions.RoleAmbtelijkOpdrachtgever}
	require.NoError(t, f.svc.Close(ctx, sponsor, module.ModuleID))

	overview, err := f.svc.Overview(ctx, module.ModuleID)
	require.NoError(t, err)
	assert.True(t, overview.Module.Closed)
	assert.False(t, overview.Module.Successful)
	assert.Equal(t, models.StatusGesloten, overview.Status.Status)

	assert.ErrorIs(t, f.svc.Close(ctx, f.manager, module.ModuleID), apperrors.ErrInvalidState)
	_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, "ambitie-7", map[string]any{"Title": "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = f.svc.EditModule(ctx, f.manager, module.ModuleID, modules.EditModuleInput{Title: ptr("Heropend")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Len(t, f.versions(t, "ambitie-7"), 1)

	var closed int
	for _, evt := range f.recorder.Events() {
		if evt.Type == events.ModuleClosed {
			closed++
		}
	}
	assert.Equal(t, 1, closed)
}

type flakyStore struct {
	*memstore.Store
	failOn string
}

func (s flakyStore) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.RunInTx(ctx, func(tx storage.Tx) error {
		return fn(flakyTx{Tx: tx, failOn: s.failOn})
	})
}

type flakyTx struct {
	storage.Tx
	failOn string
}

func (t flakyTx) InsertVersion(ctx context.Context, v models.ObjectVersion) error {
	if v.Code == t.failOn {
		return errors.New("disk full")
	}
	return t.Tx.InsertVersion(ctx, v)
}

func TestCompleteRollsBackOnFailure(t *testing.T) {
	f := newFixtureWithStore(t, memstore.New(), func(mem *memstore.Store) storage.Store {
		return flakyStore{Store: mem, failOn: "ambitie-8"}
	})
	ctx := context.Background()
	f.seedVersion(t, "ambitie-7", "Ambitie zeven", date(2020, 1, 1))
	f.seedVersion(t, "ambitie-8", "Ambitie acht", date(2020, 1, 1))
	module := f.activeModule(t)
	for _, code := range []string{"ambitie-7", "ambitie-8"} {
		_, err := f.svc.AddExistingObject(ctx, f.manager, module.ModuleID, modules.AddExistingObjectInput{Code: code, Action: models.ActionEdit})
		require.NoError(t, err)
		_, err = f.svc.PatchObject(ctx, f.manager, module.ModuleID, code, map[string]any{"Title": "Herzien"})
		require.NoError(t, err)
	}
	f.readyForCompletion(t, module.ModuleID)

	_, err := f.svc.Complete(ctx, f.manager, module.ModuleID, nil)
	require.Error(t, err)

	assert.Len(t, f.versions(t, "ambitie-7"), 1, "no partial merge")
	assert.Len(t, f.versions(t, "ambitie-8"), 1)
	assert.Equal(t, "Ambitie zeven", f.static(t, "ambitie-7").CachedTitle)

	overview, err := f.svc.Overview(ctx, module.ModuleID)
	require.NoError(t, err)
	assert.False(t, overview.Module.Closed)
	assert.True(t, overview.Module.TemporaryLocked)
	assert.Equal(t, models.StatusVastgesteld, overview.Status.Status)
	assert.Len(t, overview.Drafts, 2)

	for _, evt := range f.recorder.Events() {
		assert.NotEqual(t, events.ModuleCompleted, evt.Type)
	}
}
