package workflow

import "time"

// Transition computes the state of a workflow instance after action, for a definition of stageCount stages.
//
//	APPROVE  current_step+1; COMPLETED once every stage is cleared, IN_PROGRESS otherwise
//	REJECT   REJECTED
//	RETURN   PENDING, back to the previous stage
//	REVIEW   no change (submission, comments)
//
// PUBLISH is never processed: it is recorded once the workflow is already COMPLETED.
func Transition(inst Instance, stageCount int, action Action, now time.Time) (Instance, error) {
	if inst.Status.IsTerminal() {
		return inst, ErrAlreadyTerminal
	}

	switch action {
	case ActionApprove:
		inst.CurrentStep++
		if inst.CurrentStep >= stageCount {
			inst.CurrentStep = stageCount
			inst.Status = StatusCompleted
			inst.CompletedAt = &now
		} else {
			inst.Status = StatusInProgress
		}
	case ActionReject:
		inst.Status = StatusRejected
		inst.CompletedAt = &now
	case ActionReturn:
		inst.Status = StatusPending
		if inst.CurrentStep > 0 {
			inst.CurrentStep--
		}
	case ActionReview:
	default:
		return inst, ErrInvalidAction
	}
	return inst, nil
}

// requiresStagePermission reports whether action is a decision on the current stage.
func requiresStagePermission(action Action) bool {
	return action == ActionApprove || action == ActionReject || action == ActionReturn
}
