package handler

import (
	"context"
	"time"

	"kairos/commons/error_handler"
	"kairos/commons/handler"
	"kairos/internal/domain"
	"kairos/internal/dto"
	"kairos/internal/logger"
	"kairos/internal/service"
)

type ScheduleHandler struct {
	manager service.IScheduleManager
	logger  logger.Logger
}

func NewScheduleHandler(manager service.IScheduleManager, log logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		manager: manager,
		logger:  log.With(logger.String("component", "schedule_handler")),
	}
}

func (h *ScheduleHandler) CreateScheduleService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.CreateScheduleRequest],
) (dto.ScheduleResponse, *error_handler.ErrorCollection) {
	req := ioutil.Body
	log := h.logger.WithContext(ctx)

	log.Info("create schedule request received",
		logger.String("name", req.Name),
		logger.String("trigger_kind", req.TriggerKind),
		logger.String("job_type", req.JobType))

	job, err := h.manager.CreateSchedule(ctx, service.CreateScheduleInput{
		Name:              req.Name,
		TriggerKind:       domain.TriggerKind(req.TriggerKind),
		TriggerExpression: req.TriggerExpression,
		JobType:           req.JobType,
		Payload:           req.Payload,
		ConcurrencyPolicy: domain.ConcurrencyPolicy(req.ConcurrencyPolicy),
		Timezone:          req.Timezone,
		Enabled:           req.Enabled,
	})
	if err != nil {
		return dto.ScheduleResponse{}, toErrorCollection(log, "create schedule", err)
	}

	return toScheduleResponse(job), nil
}

func (h *ScheduleHandler) UpdateScheduleService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.UpdateScheduleRequest],
) (dto.ScheduleResponse, *error_handler.ErrorCollection) {
	id := ioutil.PathParam("schedule_id")
	req := ioutil.Body

	input := service.UpdateScheduleInput{
		Name:              req.Name,
		TriggerExpression: req.TriggerExpression,
		JobType:           req.JobType,
		Payload:           req.Payload,
		Timezone:          req.Timezone,
		ExpectedVersion:   req.ExpectedVersion,
	}
	if req.TriggerKind != nil {
		kind := domain.TriggerKind(*req.TriggerKind)
		input.TriggerKind = &kind
	}
	if req.ConcurrencyPolicy != nil {
		policy := domain.ConcurrencyPolicy(*req.ConcurrencyPolicy)
		input.ConcurrencyPolicy = &policy
	}

	job, err := h.manager.UpdateSchedule(ctx, id, input)
	if err != nil {
		return dto.ScheduleResponse{}, toErrorCollection(h.logger.WithContext(ctx), "update schedule", err)
	}
	return toScheduleResponse(job), nil
}

func (h *ScheduleHandler) GetScheduleService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.ScheduleRequest],
) (dto.ScheduleResponse, *error_handler.ErrorCollection) {
	job, err := h.manager.GetSchedule(ctx, ioutil.PathParam("schedule_id"))
	if err != nil {
		return dto.ScheduleResponse{}, toErrorCollection(h.logger.WithContext(ctx), "get schedule", err)
	}
	return toScheduleResponse(job), nil
}

func (h *ScheduleHandler) ListSchedulesService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.ListSchedulesRequest],
) (dto.ListSchedulesResponse, *error_handler.ErrorCollection) {
	page, err := h.manager.ListSchedules(ctx, pageLimit(ioutil.Body.Limit), ioutil.Body.NextToken)
	if err != nil {
		return dto.ListSchedulesResponse{}, toErrorCollection(h.logger.WithContext(ctx), "list schedules", err)
	}

	schedules := make([]dto.ScheduleResponse, len(page.Schedules))
	for i, job := range page.Schedules {
		schedules[i] = toScheduleResponse(job)
	}

	return dto.ListSchedulesResponse{
		Schedules: schedules,
		PaginationResponse: dto.PaginationResponse{
			Count:     len(schedules),
			NextToken: page.NextToken,
		},
	}, nil
}

func (h *ScheduleHandler) DisableScheduleService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.ScheduleRequest],
) (dto.ScheduleResponse, *error_handler.ErrorCollection) {
	job, err := h.manager.DisableSchedule(ctx, ioutil.PathParam("schedule_id"))
	if err != nil {
		return dto.ScheduleResponse{}, toErrorCollection(h.logger.WithContext(ctx), "disable schedule", err)
	}
	return toScheduleResponse(job), nil
}

func (h *ScheduleHandler) EnableScheduleService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.ScheduleRequest],
) (dto.ScheduleResponse, *error_handler.ErrorCollection) {
	job, err := h.manager.EnableSchedule(ctx, ioutil.PathParam("schedule_id"))
	if err != nil {
		return dto.ScheduleResponse{}, toErrorCollection(h.logger.WithContext(ctx), "enable schedule", err)
	}
	return toScheduleResponse(job), nil
}

// TriggerNowService dispatches a manual run; a failed enqueue still returns the failed run
func (h *ScheduleHandler) TriggerNowService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.ScheduleRequest],
) (dto.RunResponse, *error_handler.ErrorCollection) {
	id := ioutil.PathParam("schedule_id")
	log := h.logger.WithContext(ctx)

	run, err := h.manager.TriggerNow(ctx, id)
	if err != nil {
		return dto.RunResponse{}, toErrorCollection(log, "trigger schedule", err)
	}

	log.Info("manual run created",
		logger.String("schedule_id", id),
		logger.String("run_id", run.ID),
		logger.String("status", string(run.Status)))

	return toRunResponse(run), nil
}

func (h *ScheduleHandler) ListRunsService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.ListRunsRequest],
) (dto.ListRunsResponse, *error_handler.ErrorCollection) {
	id := ioutil.PathParam("schedule_id")

	page, err := h.manager.ListRuns(ctx, id, pageLimit(ioutil.Body.Limit), ioutil.Body.NextToken)
	if err != nil {
		return dto.ListRunsResponse{}, toErrorCollection(h.logger.WithContext(ctx), "list runs", err)
	}

	runs := make([]dto.RunResponse, len(page.Runs))
	for i, run := range page.Runs {
		runs[i] = toRunResponse(run)
	}

	return dto.ListRunsResponse{
		Runs: runs,
		PaginationResponse: dto.PaginationResponse{
			Count:     len(runs),
			NextToken: page.NextToken,
		},
	}, nil
}

// ValidateTriggerService previews a trigger. An invalid expression is a successful
// response with valid=false so editors can show the parse error inline.
func (h *ScheduleHandler) ValidateTriggerService(
	ctx context.Context,
	ioutil *handler.RequestIo[dto.ValidateTriggerRequest],
) (dto.ValidateTriggerResponse, *error_handler.ErrorCollection) {
	req := ioutil.Body

	preview, err := h.manager.ValidateTrigger(ctx, service.ValidateTriggerInput{
		TriggerKind:       domain.TriggerKind(req.TriggerKind),
		TriggerExpression: req.TriggerExpression,
		Timezone:          req.Timezone,
		Count:             req.Count,
	})
	if err != nil {
		return dto.ValidateTriggerResponse{}, toErrorCollection(h.logger.WithContext(ctx), "validate trigger", err)
	}

	resp := dto.ValidateTriggerResponse{
		Valid:       preview.Valid,
		Error:       preview.Error,
		Description: preview.Description,
		NextRuns:    make([]int64, 0, len(preview.NextRuns)),
		NextRunsISO: make([]string, 0, len(preview.NextRuns)),
	}
	for _, t := range preview.NextRuns {
		resp.NextRuns = append(resp.NextRuns, t.UnixMilli())
		resp.NextRunsISO = append(resp.NextRunsISO, t.Format(time.RFC3339))
	}
	return resp, nil
}

func toScheduleResponse(job *domain.ScheduledJob) dto.ScheduleResponse {
	return dto.ScheduleResponse{
		ID:                job.ID,
		Name:              job.Name,
		TriggerKind:       string(job.TriggerKind),
		TriggerExpression: job.TriggerExpression,
		JobType:           job.JobType,
		Payload:           job.Payload,
		Enabled:           job.Enabled,
		ConcurrencyPolicy: string(job.ConcurrencyPolicy),
		Timezone:          job.Timezone,
		NextRun:           job.NextRun,
		LastRun:           job.LastRun,
		Version:           job.Version,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}
