package handler

import (
	"context"

	"kairos/commons/error_handler"
	"kairos/commons/handler"
	"kairos/internal/clock"
	"kairos/internal/dto"
	"kairos/internal/logger"
)

type HealthHandler struct {
	logger      logger.Logger
	serviceName string
	storeDriver string
	clock       clock.Clock
}

func NewHealthHandler(log logger.Logger, serviceName, storeDriver string, clk clock.Clock) *HealthHandler {
	return &HealthHandler{
		logger:      log.With(logger.String("component", "health_handler")),
		serviceName: serviceName,
		storeDriver: storeDriver,
		clock:       clk,
	}
}

func (h *HealthHandler) HealthService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.HealthCheckRequest],
) (dto.HealthCheckResponse, *error_handler.ErrorCollection) {
	h.logger.Debug("health check requested")

	return dto.HealthCheckResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Store:   h.storeDriver,
		Time:    h.clock.Now().UnixMilli(),
	}, nil
}
