package handler

import (
	"kairos/commons/error_handler"
	"kairos/internal/domain"
	"kairos/internal/logger"
	"kairos/internal/repository"
	"kairos/internal/service"
)

// toErrorCollection maps a service error onto the HTTP error envelope
func toErrorCollection(log logger.Logger, op string, err error) *error_handler.ErrorCollection {
	errs := error_handler.NewErrorCollection()

	switch {
	case service.IsValidationError(err):
		return errs.AddError(error_handler.CodeValidationError, err.Error(), nil)
	case repository.IsNotFound(err):
		return errs.AddError(error_handler.CodeNotFound, err.Error(), nil)
	case repository.IsOptimisticLockError(err),
		repository.IsClaimConflict(err),
		repository.IsAlreadyExists(err),
		domain.IsInvalidTransition(err):
		return errs.AddError(error_handler.CodeConflict, err.Error(), nil)
	}

	log.Error("request failed", logger.String("operation", op), logger.Error(err))
	return errs.AddError(error_handler.CodeInternalServerError, "failed to "+op, nil)
}
