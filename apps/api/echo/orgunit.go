package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/orgunit"
)

type orgUnitApi struct {
	svc      orgunit.Service
	validate *validator.Validate
}

func registerOrgUnitAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, deps *Deps) {
	api := orgUnitApi{svc: deps.OrgUnitSvc, validate: deps.Validate}

	og := g.Group("/org-units", jwt, auth)
	og.GET("", api.query)
	og.POST("", api.create, adminMiddleware())
	og.GET("/:id", api.retrieve)
	og.PUT("/:id", api.update, adminMiddleware())
	og.PATCH("/:id", api.update, adminMiddleware())
	og.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *orgUnitApi) create(ctx echo.Context) error {
	var data orgunit.NewOrgUnit
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrgUnit")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ou, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating org unit")
	}
	return ctx.JSON(http.StatusCreated, ou)
}

func (api *orgUnitApi) query(ctx echo.Context) error {
	var filter orgunit.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	units, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying org units")
	}
	if units == nil {
		units = []orgunit.OrgUnit{}
	}
	return ctx.JSON(http.StatusOK, units)
}

func (api *orgUnitApi) retrieve(ctx echo.Context) error {
	ou, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding org unit by ID")
	}
	return ctx.JSON(http.StatusOK, ou)
}

func (api *orgUnitApi) update(ctx echo.Context) error {
	var data orgunit.UpdateOrgUnit
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateOrgUnit")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ou, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating org unit")
	}
	return ctx.JSON(http.StatusOK, ou)
}

func (api *orgUnitApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting org unit")
	}
	return ctx.NoContent(http.StatusNoContent)
}
