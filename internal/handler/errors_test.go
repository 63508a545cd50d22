package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"kairos/internal/domain"
	"kairos/internal/logger"
	"kairos/internal/repository"
	"kairos/internal/service"
	"kairos/internal/trigger"

	"github.com/stretchr/testify/assert"
)

func TestToErrorCollection(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid schedule", err: fmt.Errorf("name is required: %w", service.ErrInvalidSchedule), status: http.StatusBadRequest},
		{name: "invalid outcome", err: service.ErrInvalidOutcome, status: http.StatusBadRequest},
		{name: "bad cron", err: fmt.Errorf("x: %w", trigger.ErrInvalidCronSyntax), status: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("schedule s1: %w", repository.ErrNotFound), status: http.StatusNotFound},
		{name: "stale version", err: repository.ErrOptimisticLockFailed, status: http.StatusConflict},
		{name: "claim conflict", err: repository.ErrClaimConflict, status: http.StatusConflict},
		{name: "invalid transition", err: fmt.Errorf("pending -> running: %w", domain.ErrInvalidTransition), status: http.StatusConflict},
		{name: "store failure", err: errors.New("connection reset"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := toErrorCollection(logger.NewNopLogger(), "do thing", tt.err)
			assert.True(t, errs.HasErrors())
			assert.Equal(t, tt.status, errs.GetHTTPStatus())
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	errs := toErrorCollection(logger.NewNopLogger(), "list runs", errors.New("pq: password authentication failed"))
	assert.Equal(t, "failed to list runs", errs.GetErrors()[0].Message)
}

func TestPageLimit(t *testing.T) {
	assert.Equal(t, defaultPageSize, pageLimit(0))
	assert.Equal(t, 10, pageLimit(10))
	assert.Equal(t, maxPageSize, pageLimit(5000))
}
