package routes

import (
	"net/http"

	"kairos/commons/routes"
	"kairos/internal/dto"
	"kairos/internal/handler"
	"kairos/internal/logger"

	"github.com/gin-gonic/gin"
)

func InitRunRoutes(
	router *gin.Engine,
	runHandler *handler.RunHandler,
	log logger.Logger,
) {
	apiV1 := routes.CreateAPIGroup(router, "v1")

	deps := routes.RouteDependencies{
		Logger: log,
	}

	routes.RegisterRoute(
		apiV1,
		deps,
		routes.RouteOptions[dto.ReportOutcomeRequest, dto.RunResponse]{
			Path:        "/runs/outcome",
			Method:      http.MethodPost,
			ServiceFunc: runHandler.ReportOutcomeService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		apiV1,
		deps,
		routes.RouteOptions[dto.GetRunRequest, dto.RunResponse]{
			Path:        "/runs/:run_id",
			Method:      http.MethodGet,
			ServiceFunc: runHandler.GetRunService,
			RequireAuth: false,
		},
	)
}
