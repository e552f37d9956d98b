package relations_test

import (
	"context"
	"testing"
	"time"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/events"
	"f0oster/lineage/lineage"
	"f0oster/lineage/models"
	"f0oster/lineage/permissions"
	"f0oster/lineage/relations"
	"f0oster/lineage/storage"
	"f0oster/lineage/storage/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, codes ...string) (*relations.Service, *events.Recorder) {
	t.Helper()
	ctx := context.Background()
	mem := memstore.New()
	err := mem.RunInTx(ctx, func(tx storage.Tx) error {
		for _, code := range codes {
			objectType, objectID, err := lineage.ParseCode(code)
			require.NoError(t, err)
			if err := tx.InsertStatic(ctx, models.ObjectStatic{ObjectType: objectType, ObjectID: objectID, Code: code}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	rec := &events.Recorder{}
	svc := relations.NewService(mem, permissions.NewChecker(permissions.DefaultPolicy()), rec, zap.NewNop(), relations.Options{
		AllowedObjectTypes: []string{"ambitie", "beleidsdoel", "maatregel"},
		Now:                func() time.Time { return now },
	})
	return svc, rec
}

func civilServant() permissions.Actor {
	return permissions.Actor{UUID: uuid.New(), Role: permissions.RoleBehandelendAmbtenaar}
}

func TestRequestAndCounterApprove(t *testing.T) {
	svc, rec := newService(t, "ambitie-1", "beleidsdoel-2")
	ctx := context.Background()
	alice, bob := civilServant(), civilServant()

	view, err := svc.Request(ctx, alice, relations.RequestInput{Code: "beleidsdoel-2", OtherCode: "ambitie-1", Title: "Doel", Explanation: "draagt bij"})
	require.NoError(t, err)
	assert.Equal(t, "beleidsdoel-2", view.SideA.Code)
	assert.True(t, view.SideA.Acknowledged())
	assert.False(t, view.SideB.Acknowledged())
	assert.False(t, view.Acknowledged)
	assert.Equal(t, 1, view.Version)
	assert.Equal(t, "beleidsdoel-2", view.RequestedByCode)

	// stored once, in canonical order
	fromA, err := svc.Get(ctx, "ambitie-1", "beleidsdoel-2")
	require.NoError(t, err)
	fromB, err := svc.Get(ctx, "beleidsdoel-2", "ambitie-1")
	require.NoError(t, err)
	assert.Equal(t, fromA.Version, fromB.Version)
	assert.Equal(t, fromA.SideA, fromB.SideB)

	_, err = svc.Request(ctx, alice, relations.RequestInput{Code: "beleidsdoel-2", OtherCode: "ambitie-1"})
	assert.ErrorIs(t, err, apperrors.ErrConflict, "same requester while pending")

	view, err = svc.Request(ctx, bob, relations.RequestInput{Code: "ambitie-1", OtherCode: "beleidsdoel-2", Explanation: "akkoord"})
	require.NoError(t, err)
	assert.True(t, view.Acknowledged)
	assert.Equal(t, 1, view.Version, "counter-approval reuses the pending row")
	assert.Equal(t, "akkoord", view.SideA.Explanation)
	require.NotNil(t, view.SideA.AcknowledgedByUUID)
	assert.Equal(t, bob.UUID, *view.SideA.AcknowledgedByUUID)

	_, err = svc.Request(ctx, bob, relations.RequestInput{Code: "ambitie-1", OtherCode: "beleidsdoel-2"})
	assert.ErrorIs(t, err, apperrors.ErrConflict, "already acknowledged")

	require.Len(t, rec.Events(), 2)
	assert.Equal(t, events.RelationChanged, rec.Events()[1].Type)
	assert.Equal(t, "counter_approve", rec.Events()[1].Operation)
	assert.Equal(t, []string{"ambitie-1", "beleidsdoel-2"}, rec.Events()[1].Codes)
}

func TestRequestValidation(t *testing.T) {
	svc, _ := newService(t, "ambitie-1")
	ctx := context.Background()
	actor := civilServant()

	_, err := svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-1", OtherCode: "ambitie-1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-1", OtherCode: "werkingsgebied-3"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-1", OtherCode: "nocode"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-1", OtherCode: "ambitie-9"})
	assert.ErrorIs(t, err, apperrors.ErrIntegrityViolation)

	reader := permissions.Actor{UUID: uuid.New(), Role: "Lezer"}
	_, err = svc.Request(ctx, reader, relations.RequestInput{Code: "ambitie-1", OtherCode: "ambitie-2"})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestApproveDisapproveOwnSideOnly(t *testing.T) {
	svc, _ := newService(t, "ambitie-1", "maatregel-4")
	ctx := context.Background()
	actor := civilServant()

	_, err := svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-1", OtherCode: "maatregel-4"})
	require.NoError(t, err)

	view, err := svc.Approve(ctx, actor, "maatregel-4", "ambitie-1")
	require.NoError(t, err)
	assert.True(t, view.Acknowledged)

	view, err = svc.Disapprove(ctx, actor, "ambitie-1", "maatregel-4")
	require.NoError(t, err)
	assert.False(t, view.Acknowledged)
	assert.False(t, view.SideA.Acknowledged())
	assert.Nil(t, view.SideA.AcknowledgedByUUID)
	assert.True(t, view.SideB.Acknowledged(), "the other side keeps its approval")

	view, err = svc.EditExplanation(ctx, actor, "maatregel-4", "ambitie-1", "uitvoering")
	require.NoError(t, err)
	assert.Equal(t, "uitvoering", view.SideA.Explanation)
	assert.Empty(t, view.SideB.Explanation)

	_, err = svc.Approve(ctx, actor, "ambitie-1", "ambitie-2")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDenyAndDeleteAreInert(t *testing.T) {
	svc, _ := newService(t, "ambitie-1", "ambitie-2")
	ctx := context.Background()
	actor := civilServant()

	_, err := svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-1", OtherCode: "ambitie-2"})
	require.NoError(t, err)
	view, err := svc.Deny(ctx, actor, "ambitie-2", "ambitie-1")
	require.NoError(t, err)
	require.NotNil(t, view.Denied)

	_, err = svc.Approve(ctx, actor, "ambitie-2", "ambitie-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = svc.Delete(ctx, actor, "ambitie-1", "ambitie-2")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	view, err = svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-1", OtherCode: "ambitie-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, view.Version, "a denied pair reopens as a new version")
	assert.Nil(t, view.Denied)

	view, err = svc.Delete(ctx, actor, "ambitie-1", "ambitie-2")
	require.NoError(t, err)
	require.NotNil(t, view.DeletedAt)

	view, err = svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-2", OtherCode: "ambitie-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, view.Version)
	assert.Equal(t, "ambitie-2", view.RequestedByCode)
}

func TestList(t *testing.T) {
	svc, _ := newService(t, "ambitie-1", "ambitie-2", "beleidsdoel-1", "maatregel-1")
	ctx := context.Background()
	actor := civilServant()

	_, err := svc.Request(ctx, actor, relations.RequestInput{Code: "ambitie-1", OtherCode: "ambitie-2"})
	require.NoError(t, err)
	_, err = svc.Request(ctx, actor, relations.RequestInput{Code: "beleidsdoel-1", OtherCode: "ambitie-1"})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, actor, "ambitie-1", "beleidsdoel-1")
	require.NoError(t, err)
	_, err = svc.Request(ctx, actor, relations.RequestInput{Code: "maatregel-1", OtherCode: "ambitie-1"})
	require.NoError(t, err)
	_, err = svc.Delete(ctx, actor, "ambitie-1", "maatregel-1")
	require.NoError(t, err)

	all, err := svc.List(ctx, "ambitie-1", relations.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, v := range all {
		assert.Equal(t, "ambitie-1", v.SideA.Code)
	}

	mine, err := svc.List(ctx, "ambitie-1", relations.ListFilter{RequestedByMe: true})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "ambitie-2", mine[0].SideB.Code)

	acknowledged := true
	done, err := svc.List(ctx, "ambitie-1", relations.ListFilter{Acknowledged: &acknowledged})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "beleidsdoel-1", done[0].SideB.Code)

	withInactive, err := svc.List(ctx, "ambitie-1", relations.ListFilter{ShowInactive: true})
	require.NoError(t, err)
	assert.Len(t, withInactive, 3)
}
