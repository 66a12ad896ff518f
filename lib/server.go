// Package lib is the registration portal: it serves the wizard pages and
// drives one registration session per visitor against the event backend.
package lib

import (
	"context"
	"crypto/ed25519"
	"errors"
	"io/fs"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Genosoo/expoasia-web-app/decaymap"
	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/backend"
	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/Genosoo/expoasia-web-app/lib/localization"
	"github.com/Genosoo/expoasia-web-app/lib/policy"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"github.com/Genosoo/expoasia-web-app/lib/store"
	"github.com/Genosoo/expoasia-web-app/web"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expoasia_sessions_started_total",
		Help: "Registration wizards opened",
	})

	sessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "expoasia_sessions_live",
		Help: "Registration sessions held in memory, expired ones not yet swept included",
	})

	sessionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expoasia_session_cookie_rejected_total",
		Help: "Requests whose session cookie could not be used",
	}, []string{"reason"})

	pagesRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expoasia_pages_rendered_total",
		Help: "Wizard pages rendered by step",
	}, []string{"step"})

	resendsThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expoasia_resends_throttled_total",
		Help: "Passcode resends refused because one was sent too recently",
	})

	credentialDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expoasia_credential_downloads_total",
		Help: "Credential image requests by result",
	}, []string{"result"})
)

type Server struct {
	mux         *http.ServeMux
	policy      *policy.ParsedConfig
	backend     *backend.Backend
	sessions    *decaymap.Impl[string, *registration.Session]
	throttle    *Throttle
	credentials *store.JSON[registration.Credential]
	cookieName  string
	prefix      string
	ed25519Priv ed25519.PrivateKey
	ed25519Pub  ed25519.PublicKey
	hs512Secret []byte
	opts        Options
	now         func() time.Time
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func staticRoot() fs.FS {
	sub, err := fs.Sub(web.Static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

func randomChance(n int) bool {
	return rand.Intn(n) == 0
}

// newSession starts a wizard with its own backend client.
func (s *Server) newSession(lg *slog.Logger) (*registration.Session, error) {
	client, err := s.backend.NewClient()
	if err != nil {
		return nil, err
	}

	sess, err := registration.New(registration.Config{
		Issuer:      client,
		Verifier:    client,
		Credentials: client,
		Validator:   s.policy.Validator,
		Attempts:    s.policy.Attempts,
		Now:         s.now,
		Logger:      lg,
	})
	if err != nil {
		return nil, err
	}

	if randomChance(64) {
		s.sessions.Cleanup()
	}

	s.sessions.Set(sess.ID, sess, s.policy.SessionIdleTimeout)
	sessionsStarted.Inc()
	sessionsLive.Set(float64(s.sessions.Len()))

	return sess, nil
}

func (s *Server) dropSession(id string) {
	s.sessions.Delete(id)
	sessionsLive.Set(float64(s.sessions.Len()))
}

// lookupSession finds the live session named by r's cookie and pushes
// its idle deadline back.
func (s *Server) lookupSession(r *http.Request) (*registration.Session, error) {
	id, err := s.sessionID(r)
	if err != nil {
		return nil, err
	}

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionGone
	}

	s.sessions.Touch(id, s.policy.SessionIdleTimeout)
	return sess, nil
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *registration.Session, lg *slog.Logger)

// withSession resolves the visitor's session or shows the session expired
// page.
func (s *Server) withSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lg := internal.GetRequestLogger(r)

		sess, err := s.lookupSession(r)
		if err != nil {
			lg.Debug("no usable session", "err", err)
			sessionsRejected.WithLabelValues(rejectionLabel(err)).Inc()
			s.ClearCookie(w, CookieOpts{Host: r.Host})
			s.renderExpired(w, r)
			return
		}

		lg = lg.With("session", sess.ID)

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
			if err := r.ParseForm(); err != nil {
				lg.Debug("can't parse form", "err", err)
				s.respondWithStatus(w, r, localization.GetLocalizer(r).T("error_backend_rejected"), http.StatusBadRequest)
				return
			}

			s.refreshCookie(w, r, sess.ID, lg)
		}

		next(w, r, sess, lg)
	})
}

// operationContext outlives the request so a visitor who closes the tab
// mid-call doesn't leave the session failed on a cancelled context.
func (s *Server) operationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.OperationTimeout)
}

// page is what renderStep shows besides the session itself.
type page struct {
	Notice string
	Status int
}

func (s *Server) renderStep(w http.ResponseWriter, r *http.Request, sess *registration.Session, p page) {
	localizer := localization.GetLocalizer(r)
	snap := sess.Snapshot()

	view := web.View{
		Snapshot:  snap,
		Controls:  registration.Controls(snap),
		Prefix:    s.prefix,
		Notice:    p.Notice,
		Now:       s.now(),
		Localizer: localizer,
	}

	if field, id := problemMessage(snap); id != "" {
		view.Problem = localizer.T(id)
		view.ProblemField = field
	}

	if imp := s.policy.Impressum; imp != nil && snap.State == registration.StateEditing {
		view.Privacy = &imp.Privacy
	}

	title := localizer.T("page_title")
	body := web.Step(view)

	var component templ.Component
	if web.Waiting(snap.State) && !snap.Cancelled {
		component = web.BaseWithRefresh(title, body, s.policy.Impressum, s.prefix+"/status", localizer)
	} else {
		component = web.Base(title, body, s.policy.Impressum, localizer)
	}

	status := p.Status
	if status == 0 {
		status = http.StatusOK
	}

	pagesRendered.WithLabelValues(string(registration.Render(snap.State))).Inc()

	handler := internal.GzipMiddleware(1, internal.NoStoreCache(templ.Handler(
		component,
		templ.WithStatus(status),
	)))
	handler.ServeHTTP(w, r)
}

func (s *Server) renderExpired(w http.ResponseWriter, r *http.Request) {
	localizer := localization.GetLocalizer(r)

	handler := internal.GzipMiddleware(1, internal.NoStoreCache(templ.Handler(
		web.Base(localizer.T("page_title"), web.SessionExpired(s.prefix, localizer), s.policy.Impressum, localizer),
	)))
	handler.ServeHTTP(w, r)
}

func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, message string) {
	s.respondWithStatus(w, r, message, http.StatusInternalServerError)
}

func (s *Server) respondWithStatus(w http.ResponseWriter, r *http.Request, msg string, status int) {
	localizer := localization.GetLocalizer(r)

	internal.NoStoreCache(templ.Handler(
		web.Base(localizer.T("page_title"), web.ErrorPage(msg, s.opts.WebmasterEmail, localizer), s.policy.Impressum, localizer),
		templ.WithStatus(status),
	)).ServeHTTP(w, r)
}

// logOutcome logs an event error at a level matching how surprising it is.
func logOutcome(lg *slog.Logger, action string, err error) {
	var verr *registration.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr),
		errors.Is(err, registration.ErrMismatch),
		errors.Is(err, registration.ErrOutOfOrder),
		errors.Is(err, registration.ErrSuperseded),
		errors.Is(err, registration.ErrTerminal),
		errors.Is(err, registration.ErrCancelled),
		errors.Is(err, challenge.ErrExpired),
		errors.Is(err, challenge.ErrExhausted):
		lg.Debug("visitor action refused", "action", action, "err", err)
	case errors.Is(err, challenge.ErrNetwork),
		errors.Is(err, challenge.ErrServer),
		errors.Is(err, challenge.ErrAuth),
		errors.Is(err, registration.ErrNotRetryable):
		lg.Info("visitor action failed", "action", action, "err", err)
	default:
		lg.Error("[unexpected] visitor action failed", "action", action, "err", err)
	}
}
