package handler

import (
	"context"

	"kairos/commons/error_handler"
	"kairos/commons/handler"
	"kairos/internal/domain"
	"kairos/internal/dto"
	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"
	"kairos/internal/service"
)

// OutcomeRecorder applies a worker's status report to its run
type OutcomeRecorder interface {
	Apply(ctx context.Context, msg queue.OutcomeMessage) (*domain.ScheduledJobRun, error)
}

type RunHandler struct {
	logger   logger.Logger
	manager  service.IScheduleManager
	outcomes OutcomeRecorder
}

func NewRunHandler(
	log logger.Logger,
	manager service.IScheduleManager,
	outcomes OutcomeRecorder,
) *RunHandler {
	return &RunHandler{
		logger:   log.With(logger.String("component", "run_handler")),
		manager:  manager,
		outcomes: outcomes,
	}
}

func (h *RunHandler) GetRunService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.GetRunRequest],
) (dto.RunResponse, *error_handler.ErrorCollection) {
	runID := ioutil.PathParam("run_id")
	if runID == "" {
		return dto.RunResponse{}, error_handler.NewErrorCollection().
			AddError(error_handler.CodeValidationError, "run_id is required", nil)
	}

	run, err := h.manager.GetRun(ctx, runID)
	if err != nil {
		return dto.RunResponse{}, toErrorCollection(h.logger.WithContext(ctx), "get run", err)
	}
	return toRunResponse(run), nil
}

// ReportOutcomeService is the HTTP twin of the outcome queue consumer
func (h *RunHandler) ReportOutcomeService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.ReportOutcomeRequest],
) (dto.RunResponse, *error_handler.ErrorCollection) {
	req := ioutil.Body

	run, err := h.outcomes.Apply(ctx, queue.OutcomeMessage{
		QueueJobID:  req.QueueJobID,
		RunID:       req.RunID,
		Status:      req.Status,
		ErrorDetail: req.ErrorDetail,
		FinishedAt:  req.FinishedAt,
	})
	if err != nil {
		return dto.RunResponse{}, toErrorCollection(h.logger.WithContext(ctx), "record outcome", err)
	}
	return toRunResponse(run), nil
}

func toRunResponse(run *domain.ScheduledJobRun) dto.RunResponse {
	return dto.RunResponse{
		ID:              run.ID,
		ScheduleID:      run.JobID,
		Status:          string(run.Status),
		Trigger:         string(run.Trigger),
		ScheduledFor:    run.ScheduledFor,
		QueueJobID:      run.QueueJobID,
		QueueName:       run.QueueName,
		PayloadSnapshot: run.PayloadSnapshot,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		DurationMs:      run.DurationMs,
		ErrorCode:       run.ErrorCode,
		ErrorSummary:    run.ErrorSummary,
		ErrorDetail:     run.ErrorDetail,
		Version:         run.Version,
		CreatedAt:       run.CreatedAt,
		UpdatedAt:       run.UpdatedAt,
	}
}
