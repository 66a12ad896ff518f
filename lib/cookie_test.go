package lib

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func requestWithToken(s *Server, token string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/register/verify", nil)
	if token != "" {
		r.AddCookie(&http.Cookie{Name: s.cookieName, Value: token})
	}
	return r
}

func TestSessionToken(t *testing.T) {
	for _, tt := range []struct {
		name   string
		secret []byte
	}{
		{name: "ed25519"},
		{name: "hs512", secret: []byte("correct horse battery staple")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := spawnPortal(t, func(o *Options) {
				o.HS512Secret = tt.secret
			})
			s := h.server

			token, err := s.sessionToken("0197a3c2-5f1e-7b44-9a51-2d3f6f0c8e11")
			if err != nil {
				t.Fatal(err)
			}

			id, err := s.sessionID(requestWithToken(s, token))
			if err != nil {
				t.Fatal(err)
			}

			if id != "0197a3c2-5f1e-7b44-9a51-2d3f6f0c8e11" {
				t.Errorf("id = %q", id)
			}

			h.clock.Advance(s.policy.SessionIdleTimeout + time.Second)
			if _, err := s.sessionID(requestWithToken(s, token)); !errors.Is(err, ErrBadSessionToken) {
				t.Errorf("expired token: %v", err)
			}
		})
	}
}

func TestSessionTokenFromAnotherServer(t *testing.T) {
	a := spawnPortal(t, nil).server
	b := spawnPortal(t, nil).server

	token, err := a.sessionToken("s1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.sessionID(requestWithToken(b, token)); !errors.Is(err, ErrBadSessionToken) {
		t.Errorf("foreign token accepted: %v", err)
	}

	if _, err := b.sessionID(requestWithToken(b, "")); !errors.Is(err, ErrNoSessionCookie) {
		t.Errorf("missing cookie: %v", err)
	}
}

func TestCookieAttributes(t *testing.T) {
	for _, tt := range []struct {
		name          string
		mutate        func(*Options)
		host          string
		wantDomain    string
		wantSecure    bool
		wantPath      string
		wantPartition bool
	}{
		{
			name:     "defaults",
			host:     "register.expoasia.ph",
			wantPath: "/register",
		},
		{
			name: "dynamic domain",
			mutate: func(o *Options) {
				o.CookieDynamicDomain = true
				o.CookieSecure = true
			},
			host:       "register.expoasia.com.ph",
			wantDomain: "expoasia.com.ph",
			wantSecure: true,
			wantPath:   "/register",
		},
		{
			name: "fixed domain behind prefix",
			mutate: func(o *Options) {
				o.CookieDomain = "expoasia.ph"
				o.CookiePartitioned = true
				o.BasePrefix = "/visitors/"
			},
			host:          "127.0.0.1",
			wantDomain:    "expoasia.ph",
			wantPath:      "/visitors/register",
			wantPartition: true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := spawnPortal(t, tt.mutate).server

			rec := httptest.NewRecorder()
			s.SetCookie(rec, CookieOpts{Value: "v", Host: tt.host})

			cookies := rec.Result().Cookies()
			if len(cookies) != 1 {
				t.Fatalf("%d cookies set", len(cookies))
			}
			c := cookies[0]

			if c.Domain != tt.wantDomain || c.Secure != tt.wantSecure || c.Path != tt.wantPath || c.Partitioned != tt.wantPartition {
				t.Logf("want: domain=%q secure=%v path=%q partitioned=%v", tt.wantDomain, tt.wantSecure, tt.wantPath, tt.wantPartition)
				t.Logf("got:  domain=%q secure=%v path=%q partitioned=%v", c.Domain, c.Secure, c.Path, c.Partitioned)
				t.Error("wrong cookie attributes")
			}

			if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
				t.Errorf("cookie must be HttpOnly and SameSite=Lax: %+v", c)
			}
		})
	}
}
