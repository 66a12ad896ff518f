// Package backendtest runs a fake event backend speaking the same REST
// dialect as the real one.
package backendtest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/Genosoo/expoasia-web-app/lib/challenge/challengetest"
)

// PNG is the credential image the fake serves.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

// Drop makes FailNext close the connection without answering.
const Drop = 0

// Participant is a record the fake created.
type Participant struct {
	ID            int               `json:"id"`
	Fields        map[string]string `json:"fields"`
	OTPReference  string            `json:"otp_reference"`
	InviteDetails map[string]string `json:"invite_details"`
}

type Server struct {
	*httptest.Server

	// OTP keeps passcode state. Tests read codes from OTP.Inbox.
	OTP *challengetest.Backend

	lock         sync.Mutex
	tokenInBody  bool
	tokens       map[string]bool
	tokenFetches int
	rejectCSRF   int
	failures     map[string][]int
	verified     map[string]string
	participants []Participant
}

// New starts a fake backend closed at the end of the test. Its API root is
// Server.URL + "/api/".
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		OTP:         challengetest.NewBackend(),
		tokenInBody: true,
		tokens:      map[string]bool{},
		failures:    map[string][]int{},
		verified:    map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/csrf", s.csrf)
	mux.HandleFunc("POST /api/otp/send", s.guarded(s.otpSend))
	mux.HandleFunc("POST /api/otp/verify", s.guarded(s.otpVerify))
	mux.HandleFunc("POST /api/participants", s.guarded(s.createParticipant))
	mux.HandleFunc("GET /media/qr/{name}", s.image)

	s.Server = httptest.NewServer(s.failing(mux))
	t.Cleanup(s.Close)

	return s
}

// APIURL is the root to configure the client with.
func (s *Server) APIURL() string {
	return s.URL + "/api/"
}

// FailNext makes the next request to path (such as "/api/participants")
// answer with status, or drop the connection when status is Drop.
func (s *Server) FailNext(path string, statuses ...int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failures[path] = append(s.failures[path], statuses...)
}

// SetTokenInBody controls whether the token endpoint also returns the
// token as JSON. The cookie is always set.
func (s *Server) SetTokenInBody(v bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tokenInBody = v
}

// RejectCSRF makes the next n guarded requests fail the token check.
func (s *Server) RejectCSRF(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rejectCSRF += n
}

// RevokeTokens forgets every token handed out so far.
func (s *Server) RevokeTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	clear(s.tokens)
}

// TokenFetches counts GETs of the token endpoint.
func (s *Server) TokenFetches() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tokenFetches
}

// Participants returns the records created so far.
func (s *Server) Participants() []Participant {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Participant(nil), s.participants...)
}

func (s *Server) failing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		queue := s.failures[r.URL.Path]
		status, fail := -1, len(queue) != 0
		if fail {
			status = queue[0]
			s.failures[r.URL.Path] = queue[1:]
		}
		s.lock.Unlock()

		switch {
		case !fail:
			next.ServeHTTP(w, r)
		case status == Drop:
			hj, ok := w.(http.Hijacker)
			if !ok {
				panic("backendtest: response writer can't hijack")
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
		default:
			writeJSON(w, status, map[string]string{"code": "injected", "detail": http.StatusText(status)})
		}
	})
}

func (s *Server) csrf(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 16)
	rand.Read(buf)
	token := hex.EncodeToString(buf)

	s.lock.Lock()
	s.tokens[token] = true
	s.tokenFetches++
	inBody := s.tokenInBody
	s.lock.Unlock()

	http.SetCookie(w, &http.Cookie{Name: expoasia.CSRFCookie, Value: token, Path: "/"})

	if inBody {
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) guarded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(expoasia.CSRFHeader)
		cookie, _ := r.Cookie(expoasia.CSRFCookie)

		s.lock.Lock()
		ok := header != "" && cookie != nil && cookie.Value == header && s.tokens[header]
		if ok && s.rejectCSRF > 0 {
			s.rejectCSRF--
			ok = false
		}
		s.lock.Unlock()

		if !ok {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"code":   "csrf_invalid",
				"detail": "CSRF Failed: CSRF token missing or incorrect.",
			})
			return
		}

		next(w, r)
	}
}

func (s *Server) otpSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !strings.Contains(req.Email, "@") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "invalid", "detail": "email is required"})
		return
	}

	c, err := s.OTP.Issue(r.Context(), req.Email)
	if err != nil {
		writeChallengeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reference":        c.Reference,
		"expiresInSeconds": int(c.ExpiresAt.Sub(c.IssuedAt).Seconds()),
	})
}

func (s *Server) otpVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference string `json:"reference"`
		Code      string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "invalid", "detail": err.Error()})
		return
	}

	matched, err := s.OTP.Verify(r.Context(), req.Reference, req.Code)
	if err != nil {
		writeChallengeError(w, err)
		return
	}

	if matched {
		s.lock.Lock()
		s.verified[req.Reference] = ""
		s.lock.Unlock()
	}

	writeJSON(w, http.StatusOK, map[string]bool{"matched": matched})
}

func (s *Server) createParticipant(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "invalid", "detail": err.Error()})
		return
	}

	p := Participant{Fields: map[string]string{}}
	for k, v := range raw {
		switch k {
		case "otp_reference":
			json.Unmarshal(v, &p.OTPReference)
		case "invite_details":
			json.Unmarshal(v, &p.InviteDetails)
		default:
			var str string
			json.Unmarshal(v, &str)
			p.Fields[k] = str
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.verified[p.OTPReference]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "unverified", "detail": "email was not confirmed"})
		return
	}

	for _, existing := range s.participants {
		if strings.EqualFold(existing.Fields["email"], p.Fields["email"]) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": "duplicate", "detail": "participant with this email already exists"})
			return
		}
	}

	p.ID = len(s.participants) + 1
	s.participants = append(s.participants, p)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":                 p.ID,
		"credentialImageUrl": fmt.Sprintf("/media/qr/%d.png", p.ID),
	})
}

func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Write(PNG)
}

func writeChallengeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, challenge.ErrExpired):
		writeJSON(w, http.StatusGone, map[string]string{"code": "otp_expired", "detail": "passcode expired"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "error", "detail": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
