package registration

// Step is the screen shown for a session. Several states share one screen.
type Step string

const (
	StepForm     Step = "form"
	StepSending  Step = "sending"
	StepCode     Step = "code"
	StepChecking Step = "checking"
	StepIssuing  Step = "issuing"
	StepDone     Step = "done"
	StepFailed   Step = "failed"
)

// Render maps a state to the screen that shows it.
func Render(s State) Step {
	switch s {
	case StateEditing:
		return StepForm
	case StateAwaitingOtpIssue:
		return StepSending
	case StateAwaitingOtpEntry:
		return StepCode
	case StateVerifying:
		return StepChecking
	case StateVerified, StateIssuing:
		return StepIssuing
	case StateComplete:
		return StepDone
	default:
		return StepFailed
	}
}

// Action is a control the visitor can use on a screen.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionVerify   Action = "verify"
	ActionResend   Action = "resend"
	ActionBack     Action = "back"
	ActionRetry    Action = "retry"
	ActionRestart  Action = "restart"
	ActionCancel   Action = "cancel"
	ActionDownload Action = "download"
)

// Actions returns every action the wizard knows about.
func Actions() []Action {
	return []Action{
		ActionSubmit,
		ActionVerify,
		ActionResend,
		ActionBack,
		ActionRetry,
		ActionRestart,
		ActionCancel,
		ActionDownload,
	}
}

// Controls lists the actions offered for snap, in display order. An
// action is offered only when the session would accept it.
func Controls(snap Snapshot) []Action {
	if snap.Cancelled {
		return []Action{ActionRestart}
	}

	switch snap.State {
	case StateEditing:
		return []Action{ActionSubmit, ActionCancel}
	case StateAwaitingOtpIssue, StateVerifying:
		return []Action{ActionBack, ActionCancel}
	case StateAwaitingOtpEntry:
		return []Action{ActionVerify, ActionResend, ActionBack, ActionCancel}
	case StateVerified, StateIssuing:
		return []Action{ActionCancel}
	case StateComplete:
		return []Action{ActionDownload, ActionRestart}
	}

	var result []Action
	if Retryable(snap) {
		result = append(result, ActionRetry)
	}

	if snap.FailedAt != StateIssuing {
		result = append(result, ActionResend)
	}

	return append(result, ActionBack, ActionRestart)
}

// Retryable reports whether Retry would repeat the failed step.
func Retryable(snap Snapshot) bool {
	if snap.State != StateFailed {
		return false
	}

	switch snap.Reason {
	case ReasonNetwork, ReasonAuth:
	case ReasonServer:
		if snap.FailedAt == StateIssuing {
			return false
		}
	default:
		return false
	}

	switch snap.FailedAt {
	case StateAwaitingOtpIssue, StateVerifying, StateIssuing:
		return true
	}
	return false
}
