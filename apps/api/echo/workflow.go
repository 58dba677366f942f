package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/workflow"
)

type workflowApi struct {
	svc workflow.Service
}

func registerWorkflowAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, deps *Deps) {
	api := workflowApi{svc: deps.WorkflowSvc}

	wg := g.Group("/workflow-definitions", jwt, auth)
	wg.GET("", api.queryDefinitions)
	wg.GET("/:entity_type", api.retrieveDefinition)
}

func (api *workflowApi) queryDefinitions(ctx echo.Context) error {
	defs, err := api.svc.ActiveDefinitions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying workflow definitions")
	}
	if defs == nil {
		defs = []workflow.Definition{}
	}
	return ctx.JSON(http.StatusOK, defs)
}

// retrieveDefinition returns the active definition of an entity type, e.g. `/workflow-definitions/course`.
func (api *workflowApi) retrieveDefinition(ctx echo.Context) error {
	entityType := workflow.EntityType(strings.ToUpper(ctx.Param("entity_type")))
	if !entityType.IsValid() {
		return core.NewValidationError(nil, core.FieldError{Field: "entity_type", Error: "unknown entity type"})
	}

	def, err := api.svc.FindActiveDefinition(ctx.Request().Context(), entityType)
	if err != nil {
		return errors.Wrap(err, "finding active workflow definition")
	}
	if def == nil {
		return workflow.ErrDefinitionNotFound
	}
	return ctx.JSON(http.StatusOK, def)
}
