package lib

import (
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/localization"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
)

// mount starts a fresh wizard. A session already named by the cookie is
// abandoned: reloading the form always starts over.
func (s *Server) mount(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	if id, err := s.sessionID(r); err == nil {
		if old, ok := s.sessions.Get(id); ok {
			old.Cancel()
		}
		s.dropSession(id)
	}

	sess, err := s.newSession(lg)
	if err != nil {
		lg.Error("can't start registration session", "err", err)
		s.respondWithError(w, r, localization.GetLocalizer(r).T("error_backend_unreachable"))
		return
	}

	lg = lg.With("session", sess.ID)
	lg.Debug("registration session started")

	s.refreshCookie(w, r, sess.ID, lg)
	s.renderStep(w, r, sess, page{})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request, sess *registration.Session, _ *slog.Logger) {
	s.renderStep(w, r, sess, page{})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, sess *registration.Session, lg *slog.Logger) {
	for _, f := range registration.Fields() {
		if _, ok := r.PostForm[f.String()]; !ok {
			continue
		}

		if err := sess.SetField(f, r.PostForm.Get(f.String())); err != nil {
			logOutcome(lg, "edit", err)
			s.renderStep(w, r, sess, page{})
			return
		}
	}

	ctx, cancel := s.operationContext(r)
	defer cancel()

	err := sess.Submit(ctx)
	logOutcome(lg, "submit", err)

	if sess.State() == registration.StateAwaitingOtpEntry {
		if err := s.throttle.Record(ctx, sess.Snapshot().Draft.Email); err != nil {
			lg.Warn("can't record passcode send", "err", err)
		}
	}

	s.renderStep(w, r, sess, page{})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request, sess *registration.Session, lg *slog.Logger) {
	ctx, cancel := s.operationContext(r)
	defer cancel()

	err := sess.EnterCode(ctx, r.PostForm.Get("code"))
	logOutcome(lg, "verify", err)

	s.keepCredential(r, sess, lg)
	s.renderStep(w, r, sess, page{})
}

func (s *Server) resend(w http.ResponseWriter, r *http.Request, sess *registration.Session, lg *slog.Logger) {
	ctx, cancel := s.operationContext(r)
	defer cancel()

	email := sess.Snapshot().Draft.Email

	wait, err := s.throttle.Wait(ctx, email)
	if err != nil {
		lg.Warn("can't check resend throttle, allowing resend", "err", err)
	}

	if wait > 0 {
		resendsThrottled.Inc()
		lg.Debug("resend throttled", "wait", wait.String())

		notice := localization.GetLocalizer(r).TData("resend_throttled", map[string]any{
			"Seconds": int(math.Ceil(wait.Seconds())),
		})
		s.renderStep(w, r, sess, page{Notice: notice})
		return
	}

	err = sess.Resend(ctx)
	logOutcome(lg, "resend", err)

	if sess.State() == registration.StateAwaitingOtpEntry {
		if err := s.throttle.Record(ctx, email); err != nil {
			lg.Warn("can't record passcode send", "err", err)
		}
	}

	s.renderStep(w, r, sess, page{})
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request, sess *registration.Session, lg *slog.Logger) {
	ctx, cancel := s.operationContext(r)
	defer cancel()

	err := sess.Retry(ctx)
	logOutcome(lg, "retry", err)

	s.keepCredential(r, sess, lg)
	s.renderStep(w, r, sess, page{})
}

func (s *Server) back(w http.ResponseWriter, r *http.Request, sess *registration.Session, lg *slog.Logger) {
	logOutcome(lg, "back", sess.Back())
	s.renderStep(w, r, sess, page{})
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request, sess *registration.Session, lg *slog.Logger) {
	if err := sess.Cancel(); err != nil && !errors.Is(err, registration.ErrTerminal) {
		logOutcome(lg, "cancel", err)
	}

	s.dropSession(sess.ID)
	s.ClearCookie(w, CookieOpts{Host: r.Host})
	http.Redirect(w, r, s.prefix, http.StatusSeeOther)
}
