package registration

// State is where a RegistrationSession is in the workflow.
type State int

const (
	StateEditing State = iota
	StateAwaitingOtpIssue
	StateAwaitingOtpEntry
	StateVerifying
	StateVerified
	StateIssuing
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateEditing:          "editing",
	StateAwaitingOtpIssue: "awaiting_otp_issue",
	StateAwaitingOtpEntry: "awaiting_otp_entry",
	StateVerifying:        "verifying",
	StateVerified:         "verified",
	StateIssuing:          "issuing",
	StateComplete:         "complete",
	StateFailed:           "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// FailureReason says why a session is in StateFailed.
type FailureReason string

const (
	ReasonNone      FailureReason = ""
	ReasonNetwork   FailureReason = "network"
	ReasonServer    FailureReason = "server"
	ReasonAuth      FailureReason = "auth"
	ReasonExpired   FailureReason = "expired"
	ReasonExhausted FailureReason = "exhausted"
)

type event string

const (
	evEdit         event = "edit"
	evSubmit       event = "submit"
	evIssued       event = "otp_issued"
	evIssueFailed  event = "otp_issue_failed"
	evCode         event = "code_entered"
	evMatch        event = "code_matched"
	evMismatch     event = "code_mismatched"
	evExhaust      event = "attempts_exhausted"
	evExpire       event = "challenge_expired"
	evVerifyFailed event = "verify_failed"
	evIssue        event = "credential_requested"
	evCredential   event = "credential_issued"
	evCredFailed   event = "credential_failed"
	evResend       event = "resend"
	evBack         event = "back"
	evRetryIssue   event = "retry_otp"
	evRetryCode    event = "retry_code"
	evRetryCred    event = "retry_credential"
)

// transitions is the whole state machine. An event missing from the map for
// the current state is out of order and is rejected without side effects.
var transitions = map[State]map[event]State{
	StateEditing: {
		evEdit:   StateEditing,
		evSubmit: StateAwaitingOtpIssue,
	},
	StateAwaitingOtpIssue: {
		evIssued:      StateAwaitingOtpEntry,
		evIssueFailed: StateFailed,
		evBack:        StateEditing,
	},
	StateAwaitingOtpEntry: {
		evCode:   StateVerifying,
		evExpire: StateFailed,
		evResend: StateAwaitingOtpIssue,
		evBack:   StateEditing,
	},
	StateVerifying: {
		evMatch:        StateVerified,
		evMismatch:     StateAwaitingOtpEntry,
		evExhaust:      StateFailed,
		evExpire:       StateFailed,
		evVerifyFailed: StateFailed,
		evBack:         StateEditing,
	},
	StateVerified: {
		evIssue: StateIssuing,
	},
	StateIssuing: {
		evCredential: StateComplete,
		evCredFailed: StateFailed,
	},
	StateComplete: {},
	StateFailed: {
		evEdit:       StateEditing,
		evBack:       StateEditing,
		evResend:     StateAwaitingOtpIssue,
		evRetryIssue: StateAwaitingOtpIssue,
		evRetryCode:  StateAwaitingOtpEntry,
		evRetryCred:  StateIssuing,
	},
}

func next(from State, ev event) (State, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}
