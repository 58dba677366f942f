package academic_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/core/workflow"
	"github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/tests"
)

type actors struct {
	admin, principal, head, teacher, student academic.Caller
}

func setup(t *testing.T) (*testutil.App, orgunit.OrgUnit, actors) {
	app := testutil.NewApp()
	ou := testutil.CreateOrgUnit(t, app.OrgUnits, "CS", "Computer Science", orgunit.TypeDepartment)
	return app, ou, actors{
		admin:     testutil.Caller(testutil.CreateUser(t, app.UserRepo, "Ada Admin", "admin", "admin@test.cd", user.RoleAdmin)),
		principal: testutil.Caller(testutil.CreateUser(t, app.UserRepo, "Paul Principal", "principal", "principal@test.cd", user.RoleAdminPrincipal)),
		head:      testutil.Caller(testutil.CreateUser(t, app.UserRepo, "Hana Head", "head", "head@test.cd", user.RoleTeacherHead)),
		teacher:   testutil.Caller(testutil.CreateUser(t, app.UserRepo, "Tom Teacher", "teacher", "teacher@test.cd", user.RoleTeacher)),
		student:   testutil.Caller(testutil.CreateUser(t, app.UserRepo, "Sam Student", "student", "", user.RoleStudent)),
	}
}

func act(a academic.WorkflowAction) academic.WorkflowUpdate {
	return academic.WorkflowUpdate{WorkflowAction: &a, WorkflowNotes: "notes: " + string(a)}
}

func setStatus(s academic.Status) academic.WorkflowUpdate {
	return academic.WorkflowUpdate{Status: &s, Comment: "override"}
}

func strPtr(s string) *string { return &s }

func isValidationErr(err error) bool {
	_, ok := errors.Cause(err).(*core.ValidationError)
	return ok
}

func isAuthorizationErr(err error) bool {
	_, ok := errors.Cause(err).(*core.AuthorizationError)
	return ok
}

func TestService_courseLifecycle(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic

	c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "CS101")
	assert.Equal(t, academic.StatusDraft, c.Status)
	require.NotNil(t, c.OrgUnit)
	assert.Equal(t, "CS", c.OrgUnit.Code)
	assert.Nil(t, c.Workflow)
	assert.Equal(t, u.teacher.User.ID, *c.CreatedBy)

	steps := []struct {
		name       string
		by         academic.Caller
		action     academic.WorkflowAction
		wantStatus academic.Status
		wantWf     workflow.Status
		wantStep   int
	}{
		{name: "teacher submits", by: u.teacher, action: academic.ActionSubmit, wantStatus: academic.StatusSubmitted, wantWf: workflow.StatusPending},
		{name: "head reviews", by: u.head, action: academic.ActionReview, wantStatus: academic.StatusSubmitted, wantWf: workflow.StatusInProgress, wantStep: 1},
		{name: "principal approves", by: u.principal, action: academic.ActionApprove, wantStatus: academic.StatusApproved, wantWf: workflow.StatusCompleted, wantStep: 2},
		{name: "principal publishes", by: u.principal, action: academic.ActionPublish, wantStatus: academic.StatusPublished, wantWf: workflow.StatusCompleted, wantStep: 2},
	}
	for _, step := range steps {
		c, err := svc.UpdateCourse(ctx, step.by, c.ID, academic.UpdateCourse{WorkflowUpdate: act(step.action)})
		require.NoError(t, err, step.name)
		assert.Equal(t, step.wantStatus, c.Status, step.name)
		require.NotNil(t, c.Workflow, step.name)
		assert.Equal(t, step.wantWf, c.Workflow.Status, step.name)
		assert.Equal(t, step.wantStep, c.Workflow.CurrentStep, step.name)
	}

	c, err := svc.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	records := c.Workflow.ApprovalRecords
	require.Len(t, records, 4)
	wantActions := []workflow.Action{workflow.ActionReview, workflow.ActionApprove, workflow.ActionApprove, workflow.ActionPublish}
	for i, rec := range records {
		assert.Equal(t, wantActions[i], rec.Action)
	}
	assert.Equal(t, "notes: submit", records[0].Comments)
	assert.Equal(t, u.principal.User.ID, records[3].ApproverID)
	assert.Equal(t, u.teacher.User.ID, c.Workflow.InitiatedBy)
	assert.Equal(t, c.ID, c.Workflow.Metadata["course_id"])

	// the initiator hears about the approval and the publication
	msgs := app.Mail.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "teacher@test.cd", msgs[0].To[0].Address)
	assert.Equal(t, "[Academia] course CS101 is APPROVED", msgs[0].Subject)
	assert.Equal(t, "workflow_outcome", msgs[0].TemplateName)
	assert.Equal(t, "PUBLISHED", msgs[1].TemplateData.(map[string]interface{})["Status"])

	assert.Equal(t, 1, app.Metrics.Count("COURSE:create"))
	assert.Equal(t, 1, app.Metrics.Count("COURSE:submit:PENDING"))
	assert.Equal(t, 1, app.Metrics.Count("COURSE:approve:COMPLETED"))
	assert.Equal(t, 1, app.Metrics.Count("COURSE:publish:COMPLETED"))

	t.Run("published courses cannot be resubmitted", func(t *testing.T) {
		_, err := svc.UpdateCourse(ctx, u.teacher, c.ID, academic.UpdateCourse{WorkflowUpdate: act(academic.ActionSubmit)})
		assert.True(t, isValidationErr(err))
	})
}

func TestService_cohortRejectAndResubmit(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic

	m := testutil.CreateMajor(t, svc, u.teacher, ou.ID, "INF")
	c := testutil.CreateCohort(t, svc, u.teacher, ou.ID, m.ID, "INF-2025")

	c, err := svc.UpdateCohort(ctx, u.teacher, c.ID, academic.UpdateCohort{WorkflowUpdate: act(academic.ActionSubmit)})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusReviewing, c.Status)
	first := c.Workflow.ID

	// the single registrar stage requires cohort:approve, even to reject
	_, err = svc.UpdateCohort(ctx, u.head, c.ID, academic.UpdateCohort{WorkflowUpdate: act(academic.ActionReject)})
	assert.True(t, isAuthorizationErr(err))
	assert.Equal(t, "permission denied: cohort:approve required", errors.Cause(err).Error())

	c, err = svc.UpdateCohort(ctx, u.principal, c.ID, academic.UpdateCohort{WorkflowUpdate: act(academic.ActionReject)})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusRejected, c.Status)
	assert.Equal(t, workflow.StatusRejected, c.Workflow.Status)
	require.Len(t, app.Mail.Messages(), 1)

	// further decisions on the rejected workflow are refused
	_, err = svc.UpdateCohort(ctx, u.principal, c.ID, academic.UpdateCohort{WorkflowUpdate: act(academic.ActionApprove)})
	assert.Equal(t, workflow.ErrAlreadyTerminal, errors.Cause(err))

	c, err = svc.UpdateCohort(ctx, u.teacher, c.ID, academic.UpdateCohort{
		IntakeQuota:    func(n int) *int { return &n }(90),
		WorkflowUpdate: act(academic.ActionSubmit),
	})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusReviewing, c.Status)
	assert.Equal(t, 90, c.IntakeQuota)
	assert.NotEqual(t, first, c.Workflow.ID)
	assert.Equal(t, workflow.StatusPending, c.Workflow.Status)
	assert.Len(t, c.Workflow.ApprovalRecords, 1)

	c, err = svc.UpdateCohort(ctx, u.principal, c.ID, academic.UpdateCohort{WorkflowUpdate: act(academic.ActionApprove)})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusApproved, c.Status)
	assert.Equal(t, workflow.StatusCompleted, c.Workflow.Status)
}

func TestService_programReturn(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic

	p, err := svc.CreateProgram(ctx, u.teacher, academic.NewProgram{
		NewBase:      academic.NewBase{OrgUnitID: ou.ID, Code: "BSC-CS", Name: "BSc Computer Science"},
		DegreeLevel:  academic.DegreeBachelor,
		TotalCredits: 180,
	})
	require.NoError(t, err)

	for _, a := range []academic.WorkflowAction{academic.ActionSubmit, academic.ActionReview} {
		p, err = svc.UpdateProgram(ctx, u.head, p.ID, academic.UpdateProgram{WorkflowUpdate: act(a)})
		require.NoError(t, err)
	}
	assert.Equal(t, academic.StatusReviewing, p.Status)
	assert.Equal(t, 1, p.Workflow.CurrentStep)

	p, err = svc.UpdateProgram(ctx, u.principal, p.ID, academic.UpdateProgram{WorkflowUpdate: act(academic.ActionReturn)})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusDraft, p.Status)
	assert.Equal(t, workflow.StatusPending, p.Workflow.Status)
	assert.Equal(t, 0, p.Workflow.CurrentStep)

	// a returned program is resubmitted on the same workflow
	again, err := svc.UpdateProgram(ctx, u.teacher, p.ID, academic.UpdateProgram{WorkflowUpdate: act(academic.ActionSubmit)})
	require.NoError(t, err)
	assert.Equal(t, p.Workflow.ID, again.Workflow.ID)
	assert.Equal(t, academic.StatusReviewing, again.Status)
}

func TestService_publishRequiresApproval(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	c := testutil.CreateCourse(t, app.Academic, u.teacher, ou.ID, "CS200")

	_, err := app.Academic.UpdateCourse(ctx, u.principal, c.ID, academic.UpdateCourse{WorkflowUpdate: act(academic.ActionPublish)})
	assert.True(t, isValidationErr(err))

	got, err := app.Academic.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, academic.StatusDraft, got.Status)
	assert.Nil(t, got.Workflow)
}

func TestService_publishAfterFirstApproval(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic
	c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "CS300")

	c, err := svc.UpdateCourse(ctx, u.teacher, c.ID, academic.UpdateCourse{WorkflowUpdate: act(academic.ActionSubmit)})
	require.NoError(t, err)
	c, err = svc.UpdateCourse(ctx, u.principal, c.ID, academic.UpdateCourse{WorkflowUpdate: act(academic.ActionApprove)})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusApproved, c.Status)
	assert.Equal(t, workflow.StatusInProgress, c.Workflow.Status)

	c, err = svc.UpdateCourse(ctx, u.principal, c.ID, academic.UpdateCourse{WorkflowUpdate: act(academic.ActionPublish)})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusPublished, c.Status)
	assert.Equal(t, workflow.StatusCompleted, c.Workflow.Status)

	got, err := svc.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	var actions []workflow.Action
	for _, rec := range got.Workflow.ApprovalRecords {
		actions = append(actions, rec.Action)
	}
	assert.Equal(t, []workflow.Action{workflow.ActionReview, workflow.ActionApprove, workflow.ActionApprove, workflow.ActionPublish}, actions)
	assert.Equal(t, u.principal.User.ID, got.Workflow.ApprovalRecords[3].ApproverID)
}

func TestService_withoutWorkflowDefinition(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic

	def := inmemdb.DefaultDefinitions()[0]
	require.Equal(t, workflow.EntityCourse, def.EntityType)
	def.IsActive = false
	_, err := app.DB.SaveDefinition(def)
	require.NoError(t, err)

	t.Run("workflow actions are rejected", func(t *testing.T) {
		c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "NWF1")
		_, err := svc.UpdateCourse(ctx, u.teacher, c.ID, academic.UpdateCourse{WorkflowUpdate: act(academic.ActionSubmit)})
		assert.True(t, isValidationErr(err))

		got, err := svc.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, academic.StatusDraft, got.Status)
		assert.Nil(t, got.Workflow)
	})

	t.Run("status override updates the entity only", func(t *testing.T) {
		c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "NWF2")
		c, err := svc.UpdateCourse(ctx, u.admin, c.ID, academic.UpdateCourse{
			BaseUpdate:     academic.BaseUpdate{Name: strPtr("Direct publication")},
			WorkflowUpdate: setStatus(academic.StatusPublished),
		})
		require.NoError(t, err)
		assert.Equal(t, academic.StatusPublished, c.Status)
		assert.Equal(t, "Direct publication", c.Name)
		assert.Nil(t, c.Workflow)
		assert.Empty(t, app.Mail.Messages())
	})

	t.Run("delete archives without a workflow", func(t *testing.T) {
		c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "NWF3")
		_, err := svc.UpdateCourse(ctx, u.admin, c.ID, academic.UpdateCourse{WorkflowUpdate: setStatus(academic.StatusApproved)})
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, u.admin, workflow.EntityCourse, c.ID))
		got, err := svc.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, academic.StatusArchived, got.Status)
		assert.Nil(t, got.Workflow)
		assert.Equal(t, 1, app.Metrics.Count("COURSE:archive"))
	})

	t.Run("other entity types keep their workflow", func(t *testing.T) {
		m := testutil.CreateMajor(t, svc, u.teacher, ou.ID, "NWF4")
		m, err := svc.UpdateMajor(ctx, u.teacher, m.ID, academic.UpdateMajor{WorkflowUpdate: act(academic.ActionSubmit)})
		require.NoError(t, err)
		assert.Equal(t, academic.StatusReviewing, m.Status)
		assert.NotNil(t, m.Workflow)
	})
}

func TestService_authorization(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic
	c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "CS300")

	tests := []struct {
		name   string
		caller academic.Caller
		update academic.UpdateCourse
	}{
		{name: "student cannot update", caller: u.student, update: academic.UpdateCourse{BaseUpdate: academic.BaseUpdate{Name: strPtr("Hacked")}}},
		{name: "teacher cannot approve", caller: u.teacher, update: academic.UpdateCourse{WorkflowUpdate: act(academic.ActionApprove)}},
		{name: "head cannot override status", caller: u.head, update: academic.UpdateCourse{WorkflowUpdate: setStatus(academic.StatusPublished)}},
		{name: "principal cannot override status", caller: u.principal, update: academic.UpdateCourse{WorkflowUpdate: setStatus(academic.StatusPublished)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateCourse(ctx, tt.caller, c.ID, tt.update)
			assert.True(t, isAuthorizationErr(err), "got %v", err)
		})
	}

	_, err := svc.CreateCourse(ctx, u.student, academic.NewCourse{NewBase: academic.NewBase{OrgUnitID: ou.ID, Code: "CS301", Name: "X"}, Credits: 3})
	assert.True(t, isAuthorizationErr(err))
	assert.True(t, isAuthorizationErr(svc.Delete(ctx, u.teacher, workflow.EntityCourse, c.ID)))

	got, err := svc.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Course CS300", got.Name)
	assert.Equal(t, academic.StatusDraft, got.Status)
	assert.Nil(t, got.Workflow)
}

func TestService_validation(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic
	c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "CS400")

	submit := academic.ActionSubmit
	closed := academic.StatusClosed
	bad := academic.WorkflowAction("escalate")
	tests := []struct {
		name   string
		update academic.UpdateCourse
	}{
		{name: "status with workflow action", update: academic.UpdateCourse{WorkflowUpdate: academic.WorkflowUpdate{Status: &closed, WorkflowAction: &submit}}},
		{name: "status outside the vocabulary", update: academic.UpdateCourse{WorkflowUpdate: academic.WorkflowUpdate{Status: &closed}}},
		{name: "unknown action", update: academic.UpdateCourse{WorkflowUpdate: academic.WorkflowUpdate{WorkflowAction: &bad}}},
		{name: "invalid code", update: academic.UpdateCourse{BaseUpdate: academic.BaseUpdate{Code: strPtr("cs 400")}}},
		{name: "credits out of range", update: academic.UpdateCourse{Credits: func(n int) *int { return &n }(99)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateCourse(ctx, u.admin, c.ID, tt.update)
			require.Error(t, err)
			assert.False(t, isAuthorizationErr(err))
		})
	}

	_, err := svc.UpdateCourse(ctx, u.admin, "00000000-0000-0000-0000-000000000000", academic.UpdateCourse{BaseUpdate: academic.BaseUpdate{Name: strPtr("X")}})
	assert.Equal(t, academic.ErrCourseNotFound, errors.Cause(err))

	// nothing was written
	entries, err := app.History.QueryEntries(ctx, string(workflow.EntityCourse), c.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_statusOverride(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic
	m := testutil.CreateMajor(t, svc, u.teacher, ou.ID, "MATH")

	p, err := svc.CreateProgram(ctx, u.teacher, academic.NewProgram{
		NewBase:      academic.NewBase{OrgUnitID: ou.ID, Code: "BSC-MATH", Name: "BSc Mathematics"},
		MajorID:      &m.ID,
		DegreeLevel:  academic.DegreeBachelor,
		TotalCredits: 180,
	})
	require.NoError(t, err)

	p, err = svc.UpdateProgram(ctx, u.admin, p.ID, academic.UpdateProgram{WorkflowUpdate: setStatus(academic.StatusSuspended)})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusSuspended, p.Status)
	require.NotNil(t, p.Workflow)
	require.Len(t, p.Workflow.ApprovalRecords, 1)
	assert.Equal(t, workflow.ActionReview, p.Workflow.ApprovalRecords[0].Action)
	assert.Equal(t, "override", p.Workflow.ApprovalRecords[0].Comments)

	// same status: nothing recorded
	p, err = svc.UpdateProgram(ctx, u.admin, p.ID, academic.UpdateProgram{WorkflowUpdate: setStatus(academic.StatusSuspended)})
	require.NoError(t, err)
	assert.Len(t, p.Workflow.ApprovalRecords, 1)

	p, err = svc.UpdateProgram(ctx, u.admin, p.ID, academic.UpdateProgram{WorkflowUpdate: setStatus(academic.StatusPublished)})
	require.NoError(t, err)
	assert.Equal(t, academic.StatusPublished, p.Status)
	require.Len(t, p.Workflow.ApprovalRecords, 2)
	assert.Equal(t, workflow.ActionPublish, p.Workflow.ApprovalRecords[1].Action)
	assert.Equal(t, workflow.StatusPending, p.Workflow.Status)
}

func TestService_history(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic
	c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "CS500")

	_, err := svc.UpdateCourse(ctx, u.head, c.ID, academic.UpdateCourse{
		BaseUpdate:     academic.BaseUpdate{Name: strPtr("Operating Systems")},
		WorkflowUpdate: act(academic.ActionSubmit),
	})
	require.NoError(t, err)

	entries, err := app.History.QueryEntries(ctx, string(workflow.EntityCourse), c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	status, name, insert := entries[0], entries[1], entries[2]
	assert.Equal(t, "status", status.Field)
	assert.Equal(t, "DRAFT", *status.OldValue)
	assert.Equal(t, "SUBMITTED", *status.NewValue)
	assert.Equal(t, "name", name.Field)
	assert.Equal(t, "Operating Systems", *name.NewValue)
	assert.Equal(t, "Hana Head", *status.ActorName)
	assert.Equal(t, "Hana Head", *name.ActorName)
	assert.Equal(t, "submit", status.Metadata["workflow_action"])
	assert.Equal(t, c.ID, status.Metadata["entity_id"])
	assert.Equal(t, "testutil/1.0", status.UserAgent)

	assert.Equal(t, "INSERT", insert.Operation)
	assert.Equal(t, "Tom Teacher", *insert.ActorName)
	assert.Equal(t, "create", insert.Metadata["operation"])
	assert.Equal(t, "CS500", insert.Metadata["code"])
}

func TestService_constraintViolation(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic
	testutil.CreateCourse(t, svc, u.teacher, ou.ID, "CS600")
	other := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "CS601")

	_, err := svc.CreateCourse(ctx, u.teacher, academic.NewCourse{
		NewBase: academic.NewBase{OrgUnitID: ou.ID, Code: "CS600", Name: "Duplicate"},
		Credits: 3,
	})
	cv, ok := errors.Cause(err).(*core.ConstraintViolationError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "code", cv.Field)

	// the whole update is rolled back, workflow included
	_, err = svc.UpdateCourse(ctx, u.teacher, other.ID, academic.UpdateCourse{
		BaseUpdate:     academic.BaseUpdate{Code: strPtr("CS600")},
		WorkflowUpdate: act(academic.ActionSubmit),
	})
	_, ok = errors.Cause(err).(*core.ConstraintViolationError)
	assert.True(t, ok)

	got, err := svc.GetCourse(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "CS601", got.Code)
	assert.Equal(t, academic.StatusDraft, got.Status)
	assert.Nil(t, got.Workflow)

	// the same code is fine in another org unit
	ou2 := testutil.CreateOrgUnit(t, app.OrgUnits, "MATH", "Mathematics", orgunit.TypeDepartment)
	_ = testutil.CreateCourse(t, svc, u.teacher, ou2.ID, "CS600")

	_, err = svc.CreateCohort(ctx, u.teacher, academic.NewCohort{
		NewBase:      academic.NewBase{OrgUnitID: ou.ID, Code: "X-2025", Name: "X"},
		MajorID:      "00000000-0000-0000-0000-000000000000",
		AcademicYear: "2025-2026",
		StartDate:    got.CreatedAt,
	})
	cv, ok = errors.Cause(err).(*core.ConstraintViolationError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "major_id", cv.Field)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic

	t.Run("draft without dependents is deleted", func(t *testing.T) {
		c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "DEL1")
		require.NoError(t, svc.Delete(ctx, u.principal, workflow.EntityCourse, c.ID))
		_, err := svc.GetCourse(ctx, c.ID)
		assert.Equal(t, academic.ErrCourseNotFound, errors.Cause(err))

		entries, err := app.History.QueryEntries(ctx, string(workflow.EntityCourse), c.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "DELETE", entries[0].Operation)
		assert.Equal(t, "Paul Principal", *entries[0].ActorName)
	})

	t.Run("submitted entity is archived", func(t *testing.T) {
		c := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "DEL2")
		_, err := svc.UpdateCourse(ctx, u.teacher, c.ID, academic.UpdateCourse{WorkflowUpdate: act(academic.ActionSubmit)})
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, u.principal, workflow.EntityCourse, c.ID))
		got, err := svc.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, academic.StatusArchived, got.Status)
		records := got.Workflow.ApprovalRecords
		assert.Equal(t, "archived on deletion", records[len(records)-1].Comments)

		// archiving twice is a no-op
		require.NoError(t, svc.Delete(ctx, u.principal, workflow.EntityCourse, c.ID))
		again, err := svc.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, again.Workflow.ApprovalRecords, len(records))
	})

	t.Run("draft with dependents is kept", func(t *testing.T) {
		m := testutil.CreateMajor(t, svc, u.teacher, ou.ID, "DEL3")
		cohort := testutil.CreateCohort(t, svc, u.teacher, ou.ID, m.ID, "DEL3-2025")

		assert.True(t, isValidationErr(svc.Delete(ctx, u.principal, workflow.EntityMajor, m.ID)))

		_, err := app.DB.EnrollStudent(cohort.ID)
		require.NoError(t, err)
		got, err := svc.GetCohort(ctx, cohort.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.StudentCount)
		assert.True(t, isValidationErr(svc.Delete(ctx, u.principal, workflow.EntityCohort, cohort.ID)))

		_, err = svc.GetMajor(ctx, m.ID)
		assert.NoError(t, err)
	})

	t.Run("unknown entity", func(t *testing.T) {
		err := svc.Delete(ctx, u.admin, workflow.EntityProgram, "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, academic.ErrProgramNotFound, errors.Cause(err))
		assert.Error(t, svc.Delete(ctx, u.admin, "SYLLABUS", "x"))
	})
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	app, ou, u := setup(t)
	svc := app.Academic

	a := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "ALG")
	b := testutil.CreateCourse(t, svc, u.teacher, ou.ID, "BIO")
	_, err := svc.UpdateCourse(ctx, u.teacher, b.ID, academic.UpdateCourse{
		Credits:        func(n int) *int { return &n }(12),
		WorkflowUpdate: act(academic.ActionSubmit),
	})
	require.NoError(t, err)

	codes := func(courses []academic.Course) []string {
		out := make([]string, 0, len(courses))
		for _, c := range courses {
			out = append(out, c.Code)
		}
		return out
	}

	tests := []struct {
		name     string
		filter   academic.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all by code", want: []string{"ALG", "BIO"}},
		{name: "credits descending", ordering: []core.DBOrdering{{Field: "credits"}}, want: []string{"BIO", "ALG"}},
		{name: "unknown ordering is ignored", ordering: []core.DBOrdering{{Field: "password"}}, want: []string{"ALG", "BIO"}},
		{name: "search", filter: academic.QueryFilter{Search: " alg "}, want: []string{"ALG"}},
		{name: "status", filter: academic.QueryFilter{Status: "SUBMITTED"}, want: []string{"BIO"}},
		{name: "org unit", filter: academic.QueryFilter{OrgUnitID: a.OrgUnitID}, want: []string{"ALG", "BIO"}},
		{name: "no match", filter: academic.QueryFilter{Search: "zzz"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.QueryCourses(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(got))
		})
	}
}
