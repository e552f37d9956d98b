package modules_test

import (
	"context"
	"testing"
	"time"

	"f0oster/lineage/events"
	"f0oster/lineage/lineage"
	"f0oster/lineage/models"
	"f0oster/lineage/modules"
	"f0oster/lineage/permissions"
	"f0oster/lineage/snapshot"
	"f0oster/lineage/storage"
	"f0oster/lineage/storage/memstore"
	"f0oster/lineage/versioning"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Set(t time.Time) { c.now = t }

type fixture struct {
	mem       *memstore.Store
	svc       *modules.Service
	snapshots *snapshot.Service
	clock     *clock
	recorder  *events.Recorder
	manager   permissions.Actor
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memstore.New(), nil)
}

// newFixtureWithStore lets a test wrap the memstore; wrap may be nil.
func newFixtureWithStore(t *testing.T, mem *memstore.Store, wrap func(*memstore.Store) storage.Store) *fixture {
	t.Helper()
	var store storage.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}

	c := &clock{now: date(2024, 5, 1)}
	rec := &events.Recorder{}
	logger := zap.NewNop()
	svc := modules.NewService(
		store,
		permissions.NewChecker(permissions.DefaultPolicy()),
		versioning.NewService(logger),
		rec,
		logger,
		modules.Options{AllowedObjectTypes: []string{"ambitie", "beleidsdoel", "maatregel"}, Now: c.Now},
	)
	return &fixture{
		mem:       mem,
		svc:       svc,
		snapshots: snapshot.NewService(mem, logger),
		clock:     c,
		recorder:  rec,
		manager:   permissions.Actor{UUID: uuid.New(), Role: permissions.RoleBehandelendAmbtenaar},
	}
}

// seedVersion writes a main timeline version directly, as an import would.
func (f *fixture) seedVersion(t *testing.T, code, title string, start time.Time) models.ObjectVersion {
	t.Helper()
	ctx := context.Background()
	objectType, objectID, err := lineage.ParseCode(code)
	require.NoError(t, err)

	v := models.ObjectVersion{
		UUID:          uuid.New(),
		Code:          code,
		ObjectType:    objectType,
		ObjectID:      objectID,
		CreatedDate:   start,
		ModifiedDate:  start,
		StartValidity: &start,
		Payload:       models.Payload{Title: title, Description: "beschrijving", Fields: map[string]any{"Weblink": "https://example.org"}},
	}
	err = f.mem.RunInTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetStatic(ctx, code); err != nil {
			if err := tx.InsertStatic(ctx, models.ObjectStatic{ObjectType: objectType, ObjectID: objectID, Code: code, CachedTitle: title}); err != nil {
				return err
			}
		}
		return tx.InsertVersion(ctx, v)
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) createModule(t *testing.T) models.Module {
	t.Helper()
	module, err := f.svc.CreateModule(context.Background(), f.manager, modules.CreateModuleInput{
		Title:              "Herziening omgevingsvisie",
		Description:        "Module voor de herziening",
		ModuleManager1UUID: f.manager.UUID,
	})
	require.NoError(t, err)
	return module
}

func (f *fixture) activeModule(t *testing.T) models.Module {
	t.Helper()
	module := f.createModule(t)
	_, err := f.svc.Activate(context.Background(), f.manager, module.ModuleID)
	require.NoError(t, err)
	return module
}

func (f *fixture) setLocked(t *testing.T, moduleID int64, locked bool) {
	t.Helper()
	_, err := f.svc.EditModule(context.Background(), f.manager, moduleID, modules.EditModuleInput{TemporaryLocked: &locked})
	require.NoError(t, err)
}

// readyForCompletion locks the module and moves it to Vastgesteld.
func (f *fixture) readyForCompletion(t *testing.T, moduleID int64) {
	t.Helper()
	f.setLocked(t, moduleID, true)
	_, err := f.svc.PatchStatus(context.Background(), f.manager, moduleID, models.StatusVastgesteld)
	require.NoError(t, err)
}

func (f *fixture) versions(t *testing.T, code string) []models.ObjectVersion {
	t.Helper()
	history, err := f.snapshots.LineageHistory(context.Background(), code)
	require.NoError(t, err)
	return history
}

func (f *fixture) static(t *testing.T, code string) models.ObjectStatic {
	t.Helper()
	var out models.ObjectStatic
	err := f.mem.View(context.Background(), func(tx storage.Tx) error {
		var err error
		out, err = tx.GetStatic(context.Background(), code)
		return err
	})
	require.NoError(t, err)
	return out
}

func ptr[T any](v T) *T { return &v }
