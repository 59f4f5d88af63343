package application

import (
	stderrors "errors"
	"strconv"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/errors"
	"github.com/wms-platform/cfs-destuffing-service/pkg/resilience"
)

var preconditionCodes = map[error]string{
	domain.ErrMissingPackingList:     "MISSING_PACKING_LIST",
	domain.ErrNoHbls:                 "NO_HBLS",
	domain.ErrHblInProgress:          "HBL_IN_PROGRESS",
	domain.ErrNoFinishedHbl:          "NO_FINISHED_HBL",
	domain.ErrContainerAlreadyEmpty:  "CONTAINER_ALREADY_EMPTY",
	domain.ErrContainerNotInProgress: "CONTAINER_NOT_IN_PROGRESS",
	domain.ErrInvalidTransition:      "INVALID_TRANSITION",
	domain.ErrSealNumberRequired:     "SEAL_NUMBER_REQUIRED",
	domain.ErrHblAlreadyFinished:     "HBL_ALREADY_FINISHED",
}

// ToAppError maps workflow errors onto the platform error model
func ToAppError(err error) *errors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrPermissionDenied):
		return errors.ErrForbidden(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrOperationInFlight):
		return errors.ErrOperationInFlight("this hbl").Wrap(err)
	case stderrors.Is(err, domain.ErrHblNotFound):
		return errors.ErrNotFound("hbl").Wrap(err)
	case stderrors.Is(err, domain.ErrContainerNotFound):
		return errors.ErrNotFound("container").Wrap(err)
	case stderrors.Is(err, domain.ErrPlanNotFound):
		return errors.ErrNotFound("plan").Wrap(err)
	case domain.IsPrecondition(err):
		return preconditionError(err)
	case stderrors.Is(err, domain.ErrConcurrentModification), stderrors.Is(err, domain.ErrNeedsReseal):
		return errors.ErrConflict(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrCollaboratorTimeout):
		return errors.ErrTimeout("upstream call").Wrap(err)
	case stderrors.Is(err, domain.ErrCollaboratorUnavailable), stderrors.Is(err, resilience.ErrCircuitOpen):
		return errors.ErrServiceUnavailable(collaboratorName(err)).Wrap(err)
	case stderrors.Is(err, domain.ErrCollaboratorRejected):
		return errors.ErrUpstreamRejected(err.Error()).Wrap(err)
	default:
		return errors.ErrInternal("").Wrap(err)
	}
}

func preconditionError(err error) *errors.AppError {
	appErr := errors.ErrPrecondition(err.Error()).Wrap(err)
	for sentinel, code := range preconditionCodes {
		if stderrors.Is(err, sentinel) {
			appErr.WithDetail("reason", code)
			break
		}
	}
	var blocked *domain.CompletionBlockedError
	if stderrors.As(err, &blocked) && len(blocked.HblIDs) > 0 {
		for i, id := range blocked.HblIDs {
			appErr.WithDetail("hbl."+strconv.Itoa(i), id)
		}
	}
	return appErr
}

func collaboratorName(err error) string {
	var collabErr *domain.CollaboratorError
	if stderrors.As(err, &collabErr) && collabErr.Service != "" {
		return collabErr.Service
	}
	return "upstream service"
}

// outcomeFor labels an operation result for metrics
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case stderrors.Is(err, domain.ErrPermissionDenied):
		return "forbidden"
	case stderrors.Is(err, domain.ErrOperationInFlight):
		return "in_flight"
	case domain.IsPrecondition(err):
		return "precondition"
	default:
		return "failed"
	}
}
