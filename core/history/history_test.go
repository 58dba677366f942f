package history_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/tests"
)

type fixture struct {
	svc      history.Service
	courses  academic.Repository
	usr      user.User
	orgUnit  orgunit.OrgUnit
	database *inmemdb.DB
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	ouRepo := inmemdb.NewOrgUnitRepository(db)
	ou, err := ouRepo.CreateOrgUnit(context.Background(), orgunit.OrgUnit{Code: "FST", Name: "Science", Type: orgunit.TypeFaculty})
	require.NoError(t, err)

	return fixture{
		svc:      history.NewService(db, inmemdb.NewHistoryRepository(db), user.NewService(usrRepo), testutil.NopLogger{}),
		courses:  inmemdb.NewAcademicRepository(db),
		usr:      testutil.CreateUser(t, usrRepo, "Grace Hopper", "grace", "grace@test.cd", user.RoleTeacher),
		orgUnit:  ou,
		database: db,
	}
}

func (f fixture) course(code string) academic.Course {
	now := time.Now().UTC()
	return academic.Course{
		Base:    academic.Base{OrgUnitID: f.orgUnit.ID, Code: code, Name: "Course " + code, Status: academic.StatusDraft, CreatedAt: now, UpdatedAt: now},
		Credits: 3,
	}
}

func TestService_GetActorInfo(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	actor := f.svc.GetActorInfo(ctx, f.usr.ID)
	require.NotNil(t, actor.ActorID)
	require.NotNil(t, actor.ActorName)
	assert.Equal(t, f.usr.ID, *actor.ActorID)
	assert.Equal(t, "Grace Hopper", *actor.ActorName)

	assert.Equal(t, history.ActorInfo{}, f.svc.GetActorInfo(ctx, "unknown"))
	assert.Equal(t, history.ActorInfo{}, f.svc.GetActorInfo(ctx, ""))
}

func TestService_RunInTx(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	actor := f.svc.GetActorInfo(ctx, f.usr.ID)

	req := httptest.NewRequest("PATCH", "/api/courses/1", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	hc := history.NewContext(actor, history.RequestContext(req), map[string]interface{}{"operation": "create"})

	t.Run("commit attributes every row", func(t *testing.T) {
		var id string
		err := f.svc.RunInTx(ctx, hc, func(tx core.DBTransactor) error {
			c, err := f.courses.CreateCourse(ctx, f.course("CS101"), tx)
			id = c.ID
			return err
		})
		require.NoError(t, err)

		entries, err := f.svc.QueryEntries(ctx, "COURSE", id)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		e := entries[0]
		assert.Equal(t, "INSERT", e.Operation)
		assert.Equal(t, f.usr.ID, *e.ActorID)
		assert.Equal(t, "Grace Hopper", *e.ActorName)
		assert.Equal(t, "curl/8.0", e.UserAgent)
		assert.Equal(t, "create", e.Metadata["operation"])
		assert.Nil(t, e.OldValue)
		assert.NotNil(t, e.NewValue)
	})

	t.Run("updates record one entry per changed field", func(t *testing.T) {
		c, err := f.courses.CreateCourse(ctx, f.course("CS102"))
		require.NoError(t, err)

		err = f.svc.RunInTx(ctx, hc, func(tx core.DBTransactor) error {
			c.Name = "Algorithms"
			c.Credits = 6
			c.UpdatedAt = time.Now().UTC().Add(time.Minute)
			_, err := f.courses.UpdateCourse(ctx, c, tx)
			return err
		})
		require.NoError(t, err)

		entries, err := f.svc.QueryEntries(ctx, "COURSE", c.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		// newest first; fields are recorded in name order
		assert.Equal(t, "name", entries[0].Field)
		assert.Equal(t, `Algorithms`, *entries[0].NewValue)
		assert.Equal(t, "Course CS102", *entries[0].OldValue)
		assert.Equal(t, "credits", entries[1].Field)
		assert.Equal(t, "6", *entries[1].NewValue)
		assert.Equal(t, "INSERT", entries[2].Operation)
		// the insert ran outside of any history context
		assert.Nil(t, entries[2].ActorID)
	})

	t.Run("error rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		var id string
		err := f.svc.RunInTx(ctx, hc, func(tx core.DBTransactor) error {
			c, err := f.courses.CreateCourse(ctx, f.course("CS103"), tx)
			require.NoError(t, err)
			id = c.ID
			return boom
		})
		assert.Equal(t, boom, err)

		_, err = f.courses.GetCourse(ctx, id, false)
		assert.Equal(t, academic.ErrCourseNotFound, err)
		entries, err := f.svc.QueryEntries(ctx, "COURSE", id)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("panic rolls back", func(t *testing.T) {
		var id string
		assert.Panics(t, func() {
			_ = f.svc.RunInTx(ctx, hc, func(tx core.DBTransactor) error {
				c, _ := f.courses.CreateCourse(ctx, f.course("CS104"), tx)
				id = c.ID
				panic("boom")
			})
		})
		_, err := f.courses.GetCourse(ctx, id, false)
		assert.Equal(t, academic.ErrCourseNotFound, err)

		// the store is usable again
		_, err = f.courses.CreateCourse(ctx, f.course("CS104"))
		assert.NoError(t, err)
	})

	t.Run("context is transaction local", func(t *testing.T) {
		c, err := f.courses.CreateCourse(ctx, f.course("CS105"))
		require.NoError(t, err)
		entries, err := f.svc.QueryEntries(ctx, "COURSE", c.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].ActorID)
		assert.Empty(t, entries[0].UserAgent)
	})
}

func TestRepository_SetContext_requiresTx(t *testing.T) {
	f := setup(t)
	repo := inmemdb.NewHistoryRepository(f.database)
	err := repo.SetContext(context.Background(), history.Context{}, nil)
	assert.Error(t, err)
}

func TestRequestContext(t *testing.T) {
	assert.Equal(t, history.Request{}, history.RequestContext(nil))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	assert.Equal(t, history.Request{UserAgent: "Mozilla/5.0"}, history.RequestContext(req))
}
