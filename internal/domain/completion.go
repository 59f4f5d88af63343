package domain

// CheckCompletion evaluates the completion gate against the resolved view.
// Rules are checked in order and the first failure wins:
//
//  1. write permission
//  2. cargo is not already empty
//  3. at least one hbl resolved
//  4. no hbl is in progress (waiting rows are tolerated)
//  5. at least one hbl is done or on-hold, and the container is in progress
func CheckCompletion(canWrite bool, container PlanContainer, hbls []HblDestuffStatus) error {
	if !canWrite {
		return ErrPermissionDenied
	}
	if container.IsEmpty() {
		return &CompletionBlockedError{Reason: ErrContainerAlreadyEmpty}
	}
	if len(hbls) == 0 {
		return &CompletionBlockedError{Reason: ErrNoHbls}
	}

	var inProgress []string
	finished := 0
	for _, h := range hbls {
		switch {
		case h.DestuffStatus == DestuffStatusInProgress:
			inProgress = append(inProgress, h.HblID)
		case h.DestuffStatus.IsFinished():
			finished++
		}
	}
	if len(inProgress) > 0 {
		return &CompletionBlockedError{Reason: ErrHblInProgress, HblIDs: inProgress}
	}
	if finished == 0 {
		return &CompletionBlockedError{Reason: ErrNoFinishedHbl}
	}
	if !container.WorkingStatus.CanApply(ActionComplete) {
		return &CompletionBlockedError{Reason: ErrContainerNotInProgress}
	}
	return nil
}
