package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Authorization errors
var (
	ErrPermissionDenied = errors.New("write permission required")
)

// Precondition errors, always raised before any collaborator call
var (
	ErrMissingPackingList     = errors.New("hbl has no packing list")
	ErrNoHbls                 = errors.New("container has no hbls")
	ErrHblInProgress          = errors.New("hbl destuff still in progress")
	ErrNoFinishedHbl          = errors.New("no hbl has reached done or on-hold")
	ErrContainerAlreadyEmpty  = errors.New("container cargo is already empty")
	ErrContainerNotInProgress = errors.New("container is not in progress")
	ErrInvalidTransition      = errors.New("invalid working status transition")
	ErrSealNumberRequired     = errors.New("new seal number is required")
	ErrHblNotFound            = errors.New("hbl not found in container")
	ErrHblAlreadyFinished     = errors.New("hbl destuff already finished")
	ErrContainerNotFound      = errors.New("container not found in plan")
	ErrPlanNotFound           = errors.New("plan not found")
)

// ErrOperationInFlight rejects a second submission for the same hbl
var ErrOperationInFlight = errors.New("operation already in flight")

// Collaborator outcomes
var (
	// ErrNeedsReseal is returned by the completion collaborator when the
	// backing system disagrees about the container's seal or empty state.
	ErrNeedsReseal             = errors.New("container needs reseal")
	ErrConcurrentModification  = errors.New("concurrent modification")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrCollaboratorTimeout     = errors.New("collaborator timed out")
	ErrCollaboratorRejected    = errors.New("collaborator rejected request")
)

var preconditionErrors = []error{
	ErrMissingPackingList,
	ErrNoHbls,
	ErrHblInProgress,
	ErrNoFinishedHbl,
	ErrContainerAlreadyEmpty,
	ErrContainerNotInProgress,
	ErrInvalidTransition,
	ErrSealNumberRequired,
	ErrHblAlreadyFinished,
}

// IsPrecondition reports whether err is a locally checked workflow rule
func IsPrecondition(err error) bool {
	for _, target := range preconditionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CompletionBlockedError names the gate rule that failed and the hbls involved
type CompletionBlockedError struct {
	Reason error
	HblIDs []string
}

func (e *CompletionBlockedError) Error() string {
	if len(e.HblIDs) == 0 {
		return fmt.Sprintf("completion blocked: %v", e.Reason)
	}
	return fmt.Sprintf("completion blocked: %v: %s", e.Reason, strings.Join(e.HblIDs, ", "))
}

func (e *CompletionBlockedError) Unwrap() error {
	return e.Reason
}

// CollaboratorError carries the upstream status and code of a rejected call
type CollaboratorError struct {
	Service    string
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *CollaboratorError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Service, e.Operation)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s with status %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
