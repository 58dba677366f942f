// Package academic manages the curriculum entities (courses, programs, majors and cohorts)
// and keeps their status in step with their approval workflow.
package academic

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/core/workflow"
)

var (
	// errors
	ErrCourseNotFound  = core.NewNotFoundError("course")
	ErrProgramNotFound = core.NewNotFoundError("program")
	ErrMajorNotFound   = core.NewNotFoundError("major")
	ErrCohortNotFound  = core.NewNotFoundError("cohort")
)

// NotFoundError returns the not-found error of the entity type.
func NotFoundError(entityType workflow.EntityType) error {
	switch entityType {
	case workflow.EntityCourse:
		return ErrCourseNotFound
	case workflow.EntityProgram:
		return ErrProgramNotFound
	case workflow.EntityMajor:
		return ErrMajorNotFound
	default:
		return ErrCohortNotFound
	}
}

// Caller is the authenticated user performing a request.
type Caller struct {
	User    user.User
	Request history.Request
}

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, tx ...core.DBTransactor) (Course, error)
		GetCourse(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (Course, error)
		QueryCourses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]Course, error)
		UpdateCourse(ctx context.Context, c Course, tx ...core.DBTransactor) (Course, error)

		CreateProgram(ctx context.Context, p Program, tx ...core.DBTransactor) (Program, error)
		GetProgram(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (Program, error)
		QueryPrograms(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]Program, error)
		UpdateProgram(ctx context.Context, p Program, tx ...core.DBTransactor) (Program, error)

		CreateMajor(ctx context.Context, m Major, tx ...core.DBTransactor) (Major, error)
		GetMajor(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (Major, error)
		QueryMajors(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]Major, error)
		UpdateMajor(ctx context.Context, m Major, tx ...core.DBTransactor) (Major, error)

		CreateCohort(ctx context.Context, c Cohort, tx ...core.DBTransactor) (Cohort, error)
		GetCohort(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (Cohort, error)
		QueryCohorts(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]Cohort, error)
		UpdateCohort(ctx context.Context, c Cohort, tx ...core.DBTransactor) (Cohort, error)

		// GetStatus returns the status of any curriculum entity, locking its row when forUpdate is set.
		GetStatus(ctx context.Context, entityType workflow.EntityType, id string, forUpdate bool, tx ...core.DBTransactor) (Status, error)
		SetStatus(ctx context.Context, entityType workflow.EntityType, id string, status Status, tx ...core.DBTransactor) error
		// CountDependents counts the child rows preventing the physical deletion of an entity.
		CountDependents(ctx context.Context, entityType workflow.EntityType, id string, tx ...core.DBTransactor) (int, error)
		DeleteEntity(ctx context.Context, entityType workflow.EntityType, id string, tx ...core.DBTransactor) error
	}

	Service interface {
		CreateCourse(ctx context.Context, caller Caller, nc NewCourse) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryCourses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		UpdateCourse(ctx context.Context, caller Caller, id string, uc UpdateCourse) (Course, error)

		CreateProgram(ctx context.Context, caller Caller, np NewProgram) (Program, error)
		GetProgram(ctx context.Context, id string) (Program, error)
		QueryPrograms(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Program, error)
		UpdateProgram(ctx context.Context, caller Caller, id string, up UpdateProgram) (Program, error)

		CreateMajor(ctx context.Context, caller Caller, nm NewMajor) (Major, error)
		GetMajor(ctx context.Context, id string) (Major, error)
		QueryMajors(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Major, error)
		UpdateMajor(ctx context.Context, caller Caller, id string, um UpdateMajor) (Major, error)

		CreateCohort(ctx context.Context, caller Caller, nc NewCohort) (Cohort, error)
		GetCohort(ctx context.Context, id string) (Cohort, error)
		QueryCohorts(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Cohort, error)
		UpdateCohort(ctx context.Context, caller Caller, id string, uc UpdateCohort) (Cohort, error)

		// Delete physically deletes draft entities without dependents and archives the others.
		Delete(ctx context.Context, caller Caller, entityType workflow.EntityType, id string) error
	}

	service struct {
		repo      Repository
		orgUnits  orgunit.Service
		workflows workflow.Service
		history   history.Service
		users     user.Service
		mailSvc   core.EmailService
		metrics   core.Metrics
		logger    core.Logger
		validate  *validator.Validate
		appName   string
		now       func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	orgUnits orgunit.Service,
	workflows workflow.Service,
	histSvc history.Service,
	users user.Service,
	mailSvc core.EmailService,
	metrics core.Metrics,
	logger core.Logger,
	validate *validator.Validate,
	conf *core.Config,
) Service {
	if metrics == nil {
		metrics = core.NoopMetrics
	}
	return &service{
		repo:      repo,
		orgUnits:  orgUnits,
		workflows: workflows,
		history:   histSvc,
		users:     users,
		mailSvc:   mailSvc,
		metrics:   metrics,
		logger:    logger,
		validate:  validate,
		appName:   conf.AppName,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (svc *service) authorize(caller Caller, entityType workflow.EntityType, verb string) error {
	perm := user.Permission(entityType.Resource(), verb)
	if !caller.User.HasPermission(perm) {
		return core.NewAuthorizationError(perm)
	}
	return nil
}

// hydrate attaches the org unit and the current workflow (with its approval records) to the entity.
func (svc *service) hydrate(ctx context.Context, entityType workflow.EntityType, b *Base) error {
	ou, err := svc.orgUnits.GetByID(ctx, b.OrgUnitID)
	if err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "getting org unit")
	}
	if err == nil {
		b.OrgUnit = &ou
	}

	inst, err := svc.workflows.GetByEntity(ctx, entityType, b.ID)
	if err != nil {
		return errors.Wrap(err, "getting workflow")
	}
	b.Workflow = inst
	return nil
}

func (svc *service) create(ctx context.Context, caller Caller, entityType workflow.EntityType, code string, insert func(tx core.DBTransactor) (string, error)) (string, error) {
	if err := svc.authorize(caller, entityType, user.VerbCreate); err != nil {
		return "", err
	}

	actor := svc.history.GetActorInfo(ctx, caller.User.ID)
	hc := history.NewContext(actor, caller.Request, map[string]interface{}{
		"entity_type": string(entityType),
		"code":        code,
		"operation":   "create",
	})

	var id string
	err := svc.history.RunInTx(ctx, hc, func(tx core.DBTransactor) error {
		var err error
		id, err = insert(tx)
		return err
	})
	if err != nil {
		return "", err
	}
	svc.metrics.EntityMutated(string(entityType), "create")
	return id, nil
}

// Courses

func (svc *service) CreateCourse(ctx context.Context, caller Caller, nc NewCourse) (Course, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Course{}, err
	}
	id, err := svc.create(ctx, caller, workflow.EntityCourse, nc.Code, func(tx core.DBTransactor) (string, error) {
		c, err := svc.repo.CreateCourse(ctx, Course{
			Base:          nc.base(caller.User.ID, svc.now()),
			Credits:       nc.Credits,
			TheoryHours:   nc.TheoryHours,
			PracticeHours: nc.PracticeHours,
		}, tx)
		return c.ID, errors.Wrap(err, "creating course")
	})
	if err != nil {
		return Course{}, err
	}
	return svc.GetCourse(ctx, id)
}

func (svc *service) GetCourse(ctx context.Context, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id, false)
	if err != nil {
		return Course{}, err
	}
	if err = svc.hydrate(ctx, workflow.EntityCourse, &c.Base); err != nil {
		return Course{}, err
	}
	return c, nil
}

func (svc *service) QueryCourses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	filter.Clean()
	return svc.repo.QueryCourses(ctx, filter, core.FilterOrderings(ordering, append(orderingFields, "credits")...))
}

func (svc *service) UpdateCourse(ctx context.Context, caller Caller, id string, uc UpdateCourse) (Course, error) {
	if err := uc.Validate(svc.validate); err != nil {
		return Course{}, err
	}
	err := svc.mutate(ctx, caller, mutation{
		entityType: workflow.EntityCourse,
		id:         id,
		update:     uc.WorkflowUpdate,
		fields:     uc.changed(),
		apply: func(tx core.DBTransactor) (Base, error) {
			c, err := svc.repo.GetCourse(ctx, id, true, tx)
			if err != nil || !uc.changed() {
				return c.Base, err
			}
			uc.apply(&c, svc.now())
			c, err = svc.repo.UpdateCourse(ctx, c, tx)
			return c.Base, errors.Wrap(err, "updating course")
		},
	})
	if err != nil {
		return Course{}, err
	}
	return svc.GetCourse(ctx, id)
}

// Programs

func (svc *service) CreateProgram(ctx context.Context, caller Caller, np NewProgram) (Program, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Program{}, err
	}
	id, err := svc.create(ctx, caller, workflow.EntityProgram, np.Code, func(tx core.DBTransactor) (string, error) {
		var effectiveFrom *time.Time
		if np.EffectiveFrom != nil {
			ef := np.EffectiveFrom.UTC()
			effectiveFrom = &ef
		}
		p, err := svc.repo.CreateProgram(ctx, Program{
			Base:          np.base(caller.User.ID, svc.now()),
			MajorID:       np.MajorID,
			DegreeLevel:   np.DegreeLevel,
			TotalCredits:  np.TotalCredits,
			EffectiveFrom: effectiveFrom,
		}, tx)
		return p.ID, errors.Wrap(err, "creating program")
	})
	if err != nil {
		return Program{}, err
	}
	return svc.GetProgram(ctx, id)
}

func (svc *service) GetProgram(ctx context.Context, id string) (Program, error) {
	p, err := svc.repo.GetProgram(ctx, id, false)
	if err != nil {
		return Program{}, err
	}
	if err = svc.hydrate(ctx, workflow.EntityProgram, &p.Base); err != nil {
		return Program{}, err
	}
	return p, nil
}

func (svc *service) QueryPrograms(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Program, error) {
	filter.Clean()
	return svc.repo.QueryPrograms(ctx, filter, core.FilterOrderings(ordering, append(orderingFields, "degree_level")...))
}

func (svc *service) UpdateProgram(ctx context.Context, caller Caller, id string, up UpdateProgram) (Program, error) {
	if err := up.Validate(svc.validate); err != nil {
		return Program{}, err
	}
	err := svc.mutate(ctx, caller, mutation{
		entityType: workflow.EntityProgram,
		id:         id,
		update:     up.WorkflowUpdate,
		fields:     up.changed(),
		apply: func(tx core.DBTransactor) (Base, error) {
			p, err := svc.repo.GetProgram(ctx, id, true, tx)
			if err != nil || !up.changed() {
				return p.Base, err
			}
			up.apply(&p, svc.now())
			p, err = svc.repo.UpdateProgram(ctx, p, tx)
			return p.Base, errors.Wrap(err, "updating program")
		},
	})
	if err != nil {
		return Program{}, err
	}
	return svc.GetProgram(ctx, id)
}

// Majors

func (svc *service) CreateMajor(ctx context.Context, caller Caller, nm NewMajor) (Major, error) {
	if err := nm.Validate(svc.validate); err != nil {
		return Major{}, err
	}
	id, err := svc.create(ctx, caller, workflow.EntityMajor, nm.Code, func(tx core.DBTransactor) (string, error) {
		m, err := svc.repo.CreateMajor(ctx, Major{
			Base:          nm.base(caller.User.ID, svc.now()),
			DurationYears: nm.DurationYears,
		}, tx)
		return m.ID, errors.Wrap(err, "creating major")
	})
	if err != nil {
		return Major{}, err
	}
	return svc.GetMajor(ctx, id)
}

func (svc *service) GetMajor(ctx context.Context, id string) (Major, error) {
	m, err := svc.repo.GetMajor(ctx, id, false)
	if err != nil {
		return Major{}, err
	}
	if err = svc.hydrate(ctx, workflow.EntityMajor, &m.Base); err != nil {
		return Major{}, err
	}
	return m, nil
}

func (svc *service) QueryMajors(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Major, error) {
	filter.Clean()
	return svc.repo.QueryMajors(ctx, filter, core.FilterOrderings(ordering, orderingFields...))
}

func (svc *service) UpdateMajor(ctx context.Context, caller Caller, id string, um UpdateMajor) (Major, error) {
	if err := um.Validate(svc.validate); err != nil {
		return Major{}, err
	}
	err := svc.mutate(ctx, caller, mutation{
		entityType: workflow.EntityMajor,
		id:         id,
		update:     um.WorkflowUpdate,
		fields:     um.changed(),
		apply: func(tx core.DBTransactor) (Base, error) {
			m, err := svc.repo.GetMajor(ctx, id, true, tx)
			if err != nil || !um.changed() {
				return m.Base, err
			}
			um.apply(&m, svc.now())
			m, err = svc.repo.UpdateMajor(ctx, m, tx)
			return m.Base, errors.Wrap(err, "updating major")
		},
	})
	if err != nil {
		return Major{}, err
	}
	return svc.GetMajor(ctx, id)
}

// Cohorts

func (svc *service) CreateCohort(ctx context.Context, caller Caller, nc NewCohort) (Cohort, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Cohort{}, err
	}
	id, err := svc.create(ctx, caller, workflow.EntityCohort, nc.Code, func(tx core.DBTransactor) (string, error) {
		c, err := svc.repo.CreateCohort(ctx, Cohort{
			Base:         nc.base(caller.User.ID, svc.now()),
			MajorID:      nc.MajorID,
			AcademicYear: nc.AcademicYear,
			StartDate:    nc.StartDate.UTC(),
			IntakeQuota:  nc.IntakeQuota,
		}, tx)
		return c.ID, errors.Wrap(err, "creating cohort")
	})
	if err != nil {
		return Cohort{}, err
	}
	return svc.GetCohort(ctx, id)
}

func (svc *service) GetCohort(ctx context.Context, id string) (Cohort, error) {
	c, err := svc.repo.GetCohort(ctx, id, false)
	if err != nil {
		return Cohort{}, err
	}
	if err = svc.hydrate(ctx, workflow.EntityCohort, &c.Base); err != nil {
		return Cohort{}, err
	}
	return c, nil
}

func (svc *service) QueryCohorts(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Cohort, error) {
	filter.Clean()
	return svc.repo.QueryCohorts(ctx, filter, core.FilterOrderings(ordering, append(orderingFields, "academic_year", "start_date")...))
}

func (svc *service) UpdateCohort(ctx context.Context, caller Caller, id string, uc UpdateCohort) (Cohort, error) {
	if err := uc.Validate(svc.validate); err != nil {
		return Cohort{}, err
	}
	err := svc.mutate(ctx, caller, mutation{
		entityType: workflow.EntityCohort,
		id:         id,
		update:     uc.WorkflowUpdate,
		fields:     uc.changed(),
		apply: func(tx core.DBTransactor) (Base, error) {
			c, err := svc.repo.GetCohort(ctx, id, true, tx)
			if err != nil || !uc.changed() {
				return c.Base, err
			}
			uc.apply(&c, svc.now())
			c, err = svc.repo.UpdateCohort(ctx, c, tx)
			return c.Base, errors.Wrap(err, "updating cohort")
		},
	})
	if err != nil {
		return Cohort{}, err
	}
	return svc.GetCohort(ctx, id)
}
