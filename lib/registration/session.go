package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/google/uuid"
)

var (
	ErrOutOfOrder    = errors.New("registration: event is not valid in the current state")
	ErrSuperseded    = errors.New("registration: result belongs to a step the session has left")
	ErrTerminal      = errors.New("registration: session is complete")
	ErrCancelled     = errors.New("registration: session was cancelled")
	ErrMismatch      = errors.New("registration: passcode does not match")
	ErrNotRetryable  = errors.New("registration: this failure can't be retried, start over")
	ErrMisconfigured = errors.New("registration: session is missing a collaborator")
)

// Config holds the collaborators of a Session. Issuer, Verifier and
// Credentials are required.
type Config struct {
	Issuer      challenge.Issuer
	Verifier    challenge.Verifier
	Credentials CredentialIssuer
	Validator   *Validator

	// Attempts is the passcode attempt budget per challenge.
	Attempts int

	Now    func() time.Time
	Logger *slog.Logger
}

// Session is one visitor's pass through the wizard. All methods are safe
// for concurrent use. The lock is never held across a backend call; each
// call remembers the generation it started in and its result is dropped if
// the session has moved on.
type Session struct {
	ID string

	cfg       Config
	lg        *slog.Logger
	createdAt time.Time

	lock       sync.Mutex
	state      State
	reason     FailureReason
	failedAt   State
	problem    error
	draft      ParticipantDraft
	challenge  *challenge.Challenge
	credential *Credential
	gen        uint64
	issuing    bool
	cancelled  bool
}

// New creates a session in StateEditing with an empty draft.
func New(cfg Config) (*Session, error) {
	if cfg.Issuer == nil || cfg.Verifier == nil || cfg.Credentials == nil {
		return nil, ErrMisconfigured
	}

	if cfg.Attempts <= 0 {
		cfg.Attempts = expoasia.DefaultOTPAttempts
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("registration: can't make session id: %w", err)
	}

	return &Session{
		ID:        id.String(),
		cfg:       cfg,
		lg:        cfg.Logger.With("session", id.String()),
		createdAt: cfg.Now(),
		state:     StateEditing,
	}, nil
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID         string
	State      State
	Reason     FailureReason
	FailedAt   State
	Problem    error
	Draft      ParticipantDraft
	Challenge  *challenge.Challenge
	Credential *Credential
	Cancelled  bool
}

func (s *Session) Snapshot() Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()

	snap := Snapshot{
		ID:        s.ID,
		State:     s.state,
		Reason:    s.reason,
		FailedAt:  s.failedAt,
		Problem:   s.problem,
		Draft:     s.draft,
		Cancelled: s.cancelled,
	}

	if s.challenge != nil {
		c := *s.challenge
		snap.Challenge = &c
	}

	if s.credential != nil {
		c := *s.credential
		snap.Credential = &c
	}

	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

func (s *Session) guard() error {
	switch {
	case s.cancelled:
		return ErrCancelled
	case s.state == StateComplete:
		return ErrTerminal
	}
	return nil
}

func (s *Session) can(ev event) error {
	if err := s.guard(); err != nil {
		return err
	}

	if _, ok := next(s.state, ev); !ok {
		return fmt.Errorf("%w: %s while %s", ErrOutOfOrder, ev, s.state)
	}

	return nil
}

// apply moves the machine along ev. Callers hold the lock.
func (s *Session) apply(ev event) error {
	if err := s.can(ev); err != nil {
		return err
	}

	to, _ := next(s.state, ev)
	s.lg.Debug("transition", "from", s.state.String(), "to", to.String(), "event", string(ev))
	transitionsTotal.WithLabelValues(s.state.String(), to.String()).Inc()

	s.state = to
	if to != StateFailed {
		s.reason = ReasonNone
	}

	return nil
}

// fail moves to StateFailed along ev and returns cause.
func (s *Session) fail(ev event, reason FailureReason, cause error) error {
	from := s.state
	if err := s.apply(ev); err != nil {
		return err
	}

	s.reason = reason
	s.failedAt = from
	s.problem = cause
	s.lg.Info("registration step failed", "step", from.String(), "reason", string(reason), "err", cause)

	return cause
}

func reasonFor(err error) FailureReason {
	switch {
	case errors.Is(err, challenge.ErrAuth):
		return ReasonAuth
	case errors.Is(err, challenge.ErrExpired):
		return ReasonExpired
	case errors.Is(err, challenge.ErrExhausted):
		return ReasonExhausted
	case errors.Is(err, challenge.ErrServer):
		return ReasonServer
	default:
		return ReasonNetwork
	}
}

// SetField updates one draft field. Editing after a failure returns the
// session to StateEditing and discards any challenge.
func (s *Session) SetField(f Field, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	draft := s.draft
	if err := draft.Set(f, value); err != nil {
		return err
	}

	from := s.state
	if err := s.apply(evEdit); err != nil {
		return err
	}

	if from != StateEditing {
		s.gen++
		s.challenge = nil
	}

	s.draft = draft
	s.problem = nil
	return nil
}

// Submit validates the draft and asks the backend to email a passcode. A
// draft that fails validation leaves the session in StateEditing and no
// email is sent.
func (s *Session) Submit(ctx context.Context) error {
	s.lock.Lock()
	if err := s.can(evSubmit); err != nil {
		s.lock.Unlock()
		return err
	}

	if err := s.issueInFlight(); err != nil {
		s.lock.Unlock()
		return err
	}

	if err := s.cfg.Validator.Validate(s.draft); err != nil {
		s.problem = err
		s.lock.Unlock()
		return err
	}

	s.apply(evSubmit)
	gen, email := s.beginIssue()
	s.lock.Unlock()

	c, err := s.cfg.Issuer.Issue(ctx, email)
	return s.finishIssue(gen, c, err)
}

// Resend replaces the current challenge with a fresh one. The old
// reference stops being accepted.
func (s *Session) Resend(ctx context.Context) error {
	s.lock.Lock()
	if s.state == StateFailed && s.failedAt == StateIssuing {
		s.lock.Unlock()
		return fmt.Errorf("%w: resend after the passcode was accepted", ErrOutOfOrder)
	}

	if err := s.issueInFlight(); err != nil {
		s.lock.Unlock()
		return err
	}

	if err := s.apply(evResend); err != nil {
		s.lock.Unlock()
		return err
	}

	gen, email := s.beginIssue()
	s.lock.Unlock()

	c, err := s.cfg.Issuer.Issue(ctx, email)
	return s.finishIssue(gen, c, err)
}

// issueInFlight refuses a passcode request while an earlier one for this
// session has not returned, stale or not. Callers hold the lock.
func (s *Session) issueInFlight() error {
	if s.issuing {
		return fmt.Errorf("%w: passcode request already in flight", ErrOutOfOrder)
	}
	return nil
}

func (s *Session) beginIssue() (uint64, string) {
	s.issuing = true
	s.gen++
	s.challenge = nil
	s.problem = nil
	s.lg.Debug("requesting passcode", "email", internal.EmailKey(s.draft.Email))
	return s.gen, s.draft.Email
}

func (s *Session) finishIssue(gen uint64, c *challenge.Challenge, err error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.issuing = false

	if gen != s.gen || s.cancelled {
		staleResults.WithLabelValues("otp_issue").Inc()
		return ErrSuperseded
	}

	if err == nil && c == nil {
		err = fmt.Errorf("%w: empty passcode response", challenge.ErrServer)
	}

	if err != nil {
		return s.fail(evIssueFailed, reasonFor(err), err)
	}

	issued := *c
	issued.AttemptsRemaining = s.cfg.Attempts
	s.challenge = &issued
	challenge.Outcomes.WithLabelValues("issued").Inc()

	return s.apply(evIssued)
}

// EnterCode checks a passcode. On a match the credential is requested
// straight away and nil is returned once the session is complete.
//
// A wrong code returns ErrMismatch while attempts remain and
// challenge.ErrExhausted when the last one is used. A code entered after
// the local clock passes the challenge expiry returns challenge.ErrExpired
// without asking the backend.
func (s *Session) EnterCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)

	s.lock.Lock()
	if err := s.can(evCode); err != nil {
		s.lock.Unlock()
		return err
	}

	if code == "" {
		s.problem = &ValidationError{MessageID: "validation_code_required"}
		err := s.problem
		s.lock.Unlock()
		return err
	}

	if s.challenge.Expired(s.cfg.Now()) {
		challenge.Outcomes.WithLabelValues("expired").Inc()
		err := s.fail(evExpire, ReasonExpired, fmt.Errorf("%w: passed %s", challenge.ErrExpired, s.challenge.ExpiresAt.Format(time.RFC3339)))
		s.lock.Unlock()
		return err
	}

	s.apply(evCode)
	gen, ref := s.gen, s.challenge.Reference
	s.lock.Unlock()

	matched, err := s.cfg.Verifier.Verify(ctx, ref, code)

	s.lock.Lock()
	if gen != s.gen || s.cancelled {
		s.lock.Unlock()
		staleResults.WithLabelValues("otp_verify").Inc()
		return ErrSuperseded
	}

	switch {
	case errors.Is(err, challenge.ErrExpired):
		challenge.Outcomes.WithLabelValues("expired").Inc()
		err = s.fail(evExpire, ReasonExpired, err)
		s.lock.Unlock()
		return err
	case err != nil:
		err = s.fail(evVerifyFailed, reasonFor(err), err)
		s.lock.Unlock()
		return err
	case !matched:
		s.challenge.AttemptsRemaining--
		challenge.Outcomes.WithLabelValues("mismatched").Inc()

		if s.challenge.Exhausted() {
			challenge.Outcomes.WithLabelValues("exhausted").Inc()
			err = s.fail(evExhaust, ReasonExhausted, challenge.ErrExhausted)
			s.lock.Unlock()
			return err
		}

		s.apply(evMismatch)
		s.problem = ErrMismatch
		s.lock.Unlock()
		return ErrMismatch
	}

	challenge.Outcomes.WithLabelValues("matched").Inc()
	s.apply(evMatch)
	s.apply(evIssue)
	draft := s.draft
	s.lock.Unlock()

	return s.issueCredential(ctx, gen, draft, ref)
}

func (s *Session) issueCredential(ctx context.Context, gen uint64, draft ParticipantDraft, ref string) error {
	cred, err := s.cfg.Credentials.IssueCredential(ctx, draft, ref)
	if errors.Is(err, challenge.ErrNetwork) && ctx.Err() == nil {
		s.lg.Warn("credential request failed in transit, retrying once", "err", err)
		cred, err = s.cfg.Credentials.IssueCredential(ctx, draft, ref)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if gen != s.gen || s.cancelled {
		staleResults.WithLabelValues("credential").Inc()
		return ErrSuperseded
	}

	if err == nil && (cred == nil || cred.ImageURL == "") {
		err = fmt.Errorf("%w: credential response has no image", challenge.ErrServer)
	}

	if err != nil {
		return s.fail(evCredFailed, reasonFor(err), err)
	}

	issued := *cred
	if issued.IssuedAt.IsZero() {
		issued.IssuedAt = s.cfg.Now()
	}
	s.credential = &issued
	s.problem = nil

	if err := s.apply(evCredential); err != nil {
		return err
	}

	completionTime.Observe(s.cfg.Now().Sub(s.createdAt).Seconds())
	s.lg.Info("participant registered", "credential", issued.ID)
	return nil
}

// Retry repeats the step that failed. Only transport and token failures
// are retryable, plus backend rejections of the passcode email. A
// rejected participant record is likely a duplicate and is not retried.
func (s *Session) Retry(ctx context.Context) error {
	s.lock.Lock()
	if err := s.guard(); err != nil {
		s.lock.Unlock()
		return err
	}

	if s.state != StateFailed {
		s.lock.Unlock()
		return fmt.Errorf("%w: retry while %s", ErrOutOfOrder, s.state)
	}

	retryable := s.reason == ReasonNetwork || s.reason == ReasonAuth ||
		(s.reason == ReasonServer && s.failedAt != StateIssuing)
	if !retryable {
		s.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRetryable, s.reason)
	}

	switch s.failedAt {
	case StateAwaitingOtpIssue:
		if err := s.issueInFlight(); err != nil {
			s.lock.Unlock()
			return err
		}

		s.apply(evRetryIssue)
		gen, email := s.beginIssue()
		s.lock.Unlock()

		c, err := s.cfg.Issuer.Issue(ctx, email)
		return s.finishIssue(gen, c, err)

	case StateVerifying:
		s.apply(evRetryCode)
		s.problem = nil
		s.lock.Unlock()
		return nil

	case StateIssuing:
		s.apply(evRetryCred)
		s.problem = nil
		gen, draft, ref := s.gen, s.draft, s.challenge.Reference
		s.lock.Unlock()

		return s.issueCredential(ctx, gen, draft, ref)
	}

	s.lock.Unlock()
	return fmt.Errorf("%w: failed while %s", ErrNotRetryable, s.failedAt)
}

// Back returns to the form. The current challenge is discarded and any
// backend call still in flight has its result dropped.
func (s *Session) Back() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.apply(evBack); err != nil {
		return err
	}

	s.gen++
	s.challenge = nil
	s.problem = nil
	return nil
}

// Cancel abandons the session. Every later event fails with ErrCancelled.
func (s *Session) Cancel() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.guard(); err != nil {
		return err
	}

	s.cancelled = true
	s.gen++
	s.challenge = nil
	s.lg.Debug("session cancelled", "state", s.state.String())
	return nil
}
