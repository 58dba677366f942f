package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/core/workflow"
)

type academicApi struct {
	svc       academic.Service
	workflows workflow.Service
	history   history.Service
}

// entityHandlers are the handlers specific to one kind of curriculum entity.
type entityHandlers struct {
	create   echo.HandlerFunc
	query    echo.HandlerFunc
	retrieve echo.HandlerFunc
	update   echo.HandlerFunc
	// exists returns the not-found error of a missing entity.
	exists func(ctx echo.Context, id string) error
}

func registerAcademicAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, deps *Deps) {
	api := academicApi{
		svc:       deps.AcademicSvc,
		workflows: deps.WorkflowSvc,
		history:   deps.HistorySvc,
	}

	api.register(g.Group("/courses", jwt, auth), workflow.EntityCourse, entityHandlers{
		create:   api.createCourse,
		query:    api.queryCourses,
		retrieve: api.retrieveCourse,
		update:   api.updateCourse,
		exists: func(ctx echo.Context, id string) error {
			_, err := api.svc.GetCourse(ctx.Request().Context(), id)
			return err
		},
	})
	api.register(g.Group("/programs", jwt, auth), workflow.EntityProgram, entityHandlers{
		create:   api.createProgram,
		query:    api.queryPrograms,
		retrieve: api.retrieveProgram,
		update:   api.updateProgram,
		exists: func(ctx echo.Context, id string) error {
			_, err := api.svc.GetProgram(ctx.Request().Context(), id)
			return err
		},
	})
	api.register(g.Group("/majors", jwt, auth), workflow.EntityMajor, entityHandlers{
		create:   api.createMajor,
		query:    api.queryMajors,
		retrieve: api.retrieveMajor,
		update:   api.updateMajor,
		exists: func(ctx echo.Context, id string) error {
			_, err := api.svc.GetMajor(ctx.Request().Context(), id)
			return err
		},
	})
	api.register(g.Group("/cohorts", jwt, auth), workflow.EntityCohort, entityHandlers{
		create:   api.createCohort,
		query:    api.queryCohorts,
		retrieve: api.retrieveCohort,
		update:   api.updateCohort,
		exists: func(ctx echo.Context, id string) error {
			_, err := api.svc.GetCohort(ctx.Request().Context(), id)
			return err
		},
	})
}

// register mounts the endpoints of an entity type. Writes are authorized by the service.
func (api *academicApi) register(g *echo.Group, entityType workflow.EntityType, h entityHandlers) {
	read := permissionMiddleware(entityType.Resource(), user.VerbRead)

	g.GET("", h.query, read)
	g.POST("", h.create)
	g.GET("/:id", h.retrieve, read)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", api.destroy(entityType))
	g.GET("/:id/workflow", api.retrieveWorkflow(entityType, h.exists), read)
	g.GET("/:id/history", api.queryHistory(entityType, h.exists), read)
}

func (api *academicApi) destroy(entityType workflow.EntityType) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		caller, err := getCaller(ctx)
		if err != nil {
			return err
		}
		if err := api.svc.Delete(ctx.Request().Context(), caller, entityType, ctx.Param("id")); err != nil {
			return errors.Wrapf(err, "deleting %s", entityType.Resource())
		}
		return ctx.NoContent(http.StatusNoContent)
	}
}

func (api *academicApi) retrieveWorkflow(entityType workflow.EntityType, exists func(echo.Context, string) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id := ctx.Param("id")
		if err := exists(ctx, id); err != nil {
			return errors.Wrapf(err, "finding %s by ID", entityType.Resource())
		}
		inst, err := api.workflows.GetByEntity(ctx.Request().Context(), entityType, id)
		if err != nil {
			return errors.Wrap(err, "getting workflow")
		}
		if inst == nil {
			return workflow.ErrInstanceNotFound
		}
		return ctx.JSON(http.StatusOK, inst)
	}
}

func (api *academicApi) queryHistory(entityType workflow.EntityType, exists func(echo.Context, string) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id := ctx.Param("id")
		if err := exists(ctx, id); err != nil {
			return errors.Wrapf(err, "finding %s by ID", entityType.Resource())
		}
		entries, err := api.history.QueryEntries(ctx.Request().Context(), string(entityType), id)
		if err != nil {
			return errors.Wrap(err, "querying history")
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		return ctx.JSON(http.StatusOK, entries)
	}
}

func bindQuery(ctx echo.Context) (academic.QueryFilter, *Ordering, error) {
	var filter academic.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return filter, nil, errors.Wrap(err, "binding to QueryFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	return filter, ordering, nil
}

// Courses

func (api *academicApi) createCourse(ctx echo.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	var data academic.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	c, err := api.svc.CreateCourse(ctx.Request().Context(), caller, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *academicApi) queryCourses(ctx echo.Context) error {
	filter, ordering, err := bindQuery(ctx)
	if err != nil {
		return err
	}
	courses, err := api.svc.QueryCourses(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []academic.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *academicApi) retrieveCourse(ctx echo.Context) error {
	c, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course by ID")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *academicApi) updateCourse(ctx echo.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	var data academic.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}

	c, err := api.svc.UpdateCourse(ctx.Request().Context(), caller, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

// Programs

func (api *academicApi) createProgram(ctx echo.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	var data academic.NewProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgram")
	}

	p, err := api.svc.CreateProgram(ctx.Request().Context(), caller, data)
	if err != nil {
		return errors.Wrap(err, "creating program")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *academicApi) queryPrograms(ctx echo.Context) error {
	filter, ordering, err := bindQuery(ctx)
	if err != nil {
		return err
	}
	programs, err := api.svc.QueryPrograms(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	if programs == nil {
		programs = []academic.Program{}
	}
	return ctx.JSON(http.StatusOK, programs)
}

func (api *academicApi) retrieveProgram(ctx echo.Context) error {
	p, err := api.svc.GetProgram(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding program by ID")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *academicApi) updateProgram(ctx echo.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	var data academic.UpdateProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgram")
	}

	p, err := api.svc.UpdateProgram(ctx.Request().Context(), caller, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating program")
	}
	return ctx.JSON(http.StatusOK, p)
}

// Majors

func (api *academicApi) createMajor(ctx echo.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	var data academic.NewMajor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMajor")
	}

	m, err := api.svc.CreateMajor(ctx.Request().Context(), caller, data)
	if err != nil {
		return errors.Wrap(err, "creating major")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *academicApi) queryMajors(ctx echo.Context) error {
	filter, ordering, err := bindQuery(ctx)
	if err != nil {
		return err
	}
	majors, err := api.svc.QueryMajors(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying majors")
	}
	if majors == nil {
		majors = []academic.Major{}
	}
	return ctx.JSON(http.StatusOK, majors)
}

func (api *academicApi) retrieveMajor(ctx echo.Context) error {
	m, err := api.svc.GetMajor(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding major by ID")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *academicApi) updateMajor(ctx echo.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	var data academic.UpdateMajor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMajor")
	}

	m, err := api.svc.UpdateMajor(ctx.Request().Context(), caller, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating major")
	}
	return ctx.JSON(http.StatusOK, m)
}

// Cohorts

func (api *academicApi) createCohort(ctx echo.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	var data academic.NewCohort
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCohort")
	}

	c, err := api.svc.CreateCohort(ctx.Request().Context(), caller, data)
	if err != nil {
		return errors.Wrap(err, "creating cohort")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *academicApi) queryCohorts(ctx echo.Context) error {
	filter, ordering, err := bindQuery(ctx)
	if err != nil {
		return err
	}
	cohorts, err := api.svc.QueryCohorts(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying cohorts")
	}
	if cohorts == nil {
		cohorts = []academic.Cohort{}
	}
	return ctx.JSON(http.StatusOK, cohorts)
}

func (api *academicApi) retrieveCohort(ctx echo.Context) error {
	c, err := api.svc.GetCohort(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding cohort by ID")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *academicApi) updateCohort(ctx echo.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	var data academic.UpdateCohort
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCohort")
	}

	c, err := api.svc.UpdateCohort(ctx.Request().Context(), caller, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating cohort")
	}
	return ctx.JSON(http.StatusOK, c)
}
