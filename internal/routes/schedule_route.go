package routes

import (
	"net/http"

	"kairos/commons/routes"
	"kairos/internal/dto"
	"kairos/internal/handler"
	"kairos/internal/logger"

	"github.com/gin-gonic/gin"
)

func InitScheduleRoutes(
	router *gin.Engine,
	scheduleHandler *handler.ScheduleHandler,
	log logger.Logger,
) {
	apiV1 := routes.CreateAPIGroup(router, "v1")

	deps := routes.RouteDependencies{
		Logger: log,
	}

	schedules := apiV1.Group("/schedules")

	routes.RegisterRoute(
		schedules,
		deps,
		routes.RouteOptions[dto.CreateScheduleRequest, dto.ScheduleResponse]{
			Path:        "",
			Method:      http.MethodPost,
			ServiceFunc: scheduleHandler.CreateScheduleService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		schedules,
		deps,
		routes.RouteOptions[dto.ListSchedulesRequest, dto.ListSchedulesResponse]{
			Path:        "",
			Method:      http.MethodGet,
			ServiceFunc: scheduleHandler.ListSchedulesService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		schedules,
		deps,
		routes.RouteOptions[dto.ScheduleRequest, dto.ScheduleResponse]{
			Path:        "/:schedule_id",
			Method:      http.MethodGet,
			ServiceFunc: scheduleHandler.GetScheduleService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		schedules,
		deps,
		routes.RouteOptions[dto.UpdateScheduleRequest, dto.ScheduleResponse]{
			Path:        "/:schedule_id",
			Method:      http.MethodPatch,
			ServiceFunc: scheduleHandler.UpdateScheduleService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		schedules,
		deps,
		routes.RouteOptions[dto.ScheduleRequest, dto.ScheduleResponse]{
			Path:        "/:schedule_id/disable",
			Method:      http.MethodPost,
			ServiceFunc: scheduleHandler.DisableScheduleService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		schedules,
		deps,
		routes.RouteOptions[dto.ScheduleRequest, dto.ScheduleResponse]{
			Path:        "/:schedule_id/enable",
			Method:      http.MethodPost,
			ServiceFunc: scheduleHandler.EnableScheduleService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		schedules,
		deps,
		routes.RouteOptions[dto.ScheduleRequest, dto.RunResponse]{
			Path:        "/:schedule_id/trigger",
			Method:      http.MethodPost,
			ServiceFunc: scheduleHandler.TriggerNowService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		schedules,
		deps,
		routes.RouteOptions[dto.ListRunsRequest, dto.ListRunsResponse]{
			Path:        "/:schedule_id/runs",
			Method:      http.MethodGet,
			ServiceFunc: scheduleHandler.ListRunsService,
			RequireAuth: false,
		},
	)

	routes.RegisterRoute(
		apiV1,
		deps,
		routes.RouteOptions[dto.ValidateTriggerRequest, dto.ValidateTriggerResponse]{
			Path:        "/triggers/validate",
			Method:      http.MethodPost,
			ServiceFunc: scheduleHandler.ValidateTriggerService,
			RequireAuth: false,
		},
	)
}
