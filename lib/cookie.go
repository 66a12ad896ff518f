package lib

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/publicsuffix"

	"github.com/Genosoo/expoasia-web-app"
)

var (
	ErrNoSessionCookie = errors.New("lib: no session cookie")
	ErrBadSessionToken = errors.New("lib: session cookie is not valid")
	ErrSessionGone     = errors.New("lib: session expired or was never started")
)

const maxFormBytes = 64 << 10

var domainMatchRegexp = regexp.MustCompile(`^((xn--)?[a-z0-9]+(-[a-z0-9]+)*\.)+[a-z]{2,}$`)

type CookieOpts struct {
	Value  string
	Host   string
	Path   string
	Name   string
	Expiry time.Duration
}

func (s *Server) cookieDomain(host string) string {
	domain := s.opts.CookieDomain
	if s.opts.CookieDynamicDomain && domainMatchRegexp.MatchString(host) {
		if etld, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			domain = etld
		}
	}
	return domain
}

func (s *Server) SetCookie(w http.ResponseWriter, cookieOpts CookieOpts) {
	var name = s.cookieName
	var path = s.prefix
	if cookieOpts.Name != "" {
		name = cookieOpts.Name
	}
	if cookieOpts.Path != "" {
		path = cookieOpts.Path
	}

	if cookieOpts.Expiry == 0 {
		cookieOpts.Expiry = s.policy.SessionIdleTimeout
	}

	http.SetCookie(w, &http.Cookie{
		Name:        name,
		Value:       cookieOpts.Value,
		Expires:     s.now().Add(cookieOpts.Expiry),
		SameSite:    http.SameSiteLaxMode,
		HttpOnly:    true,
		Domain:      s.cookieDomain(cookieOpts.Host),
		Secure:      s.opts.CookieSecure,
		Partitioned: s.opts.CookiePartitioned,
		Path:        path,
	})
}

func (s *Server) ClearCookie(w http.ResponseWriter, cookieOpts CookieOpts) {
	var name = s.cookieName
	var path = s.prefix
	if cookieOpts.Name != "" {
		name = cookieOpts.Name
	}
	if cookieOpts.Path != "" {
		path = cookieOpts.Path
	}

	http.SetCookie(w, &http.Cookie{
		Name:        name,
		Value:       "",
		MaxAge:      -1,
		Expires:     s.now().Add(-1 * time.Minute),
		SameSite:    http.SameSiteLaxMode,
		HttpOnly:    true,
		Partitioned: s.opts.CookiePartitioned,
		Domain:      s.cookieDomain(cookieOpts.Host),
		Secure:      s.opts.CookieSecure,
		Path:        path,
	})
}

func (s *Server) signJWT(claims jwt.MapClaims) (string, error) {
	now := s.now()
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Add(-1 * time.Minute).Unix()
	claims["exp"] = now.Add(s.policy.SessionIdleTimeout).Unix()

	if len(s.hs512Secret) == 0 {
		return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.ed25519Priv)
	} else {
		return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.hs512Secret)
	}
}

func (s *Server) keyFunc(token *jwt.Token) (any, error) {
	if len(s.hs512Secret) == 0 {
		return s.ed25519Pub, nil
	}
	return s.hs512Secret, nil
}

func (s *Server) validMethods() []string {
	if len(s.hs512Secret) == 0 {
		return []string{jwt.SigningMethodEdDSA.Alg()}
	}
	return []string{jwt.SigningMethodHS512.Alg()}
}

// sessionToken signs a cookie value naming session id.
func (s *Server) sessionToken(id string) (string, error) {
	return s.signJWT(jwt.MapClaims{
		"sid": id,
		"v":   expoasia.Version,
	})
}

// sessionID reads the session id out of r's signed cookie.
func (s *Server) sessionID(r *http.Request) (string, error) {
	ckie, err := r.Cookie(s.cookieName)
	if err != nil || ckie.Value == "" {
		return "", ErrNoSessionCookie
	}

	token, err := jwt.ParseWithClaims(ckie.Value, jwt.MapClaims{}, s.keyFunc,
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithValidMethods(s.validMethods()),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %w", ErrBadSessionToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: claims are %T", ErrBadSessionToken, token.Claims)
	}

	id, ok := claims["sid"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: sid claim missing", ErrBadSessionToken)
	}

	return id, nil
}

// refreshCookie re-signs the session cookie so an active visitor's cookie
// lives as long as their session.
func (s *Server) refreshCookie(w http.ResponseWriter, r *http.Request, id string, lg *slog.Logger) {
	token, err := s.sessionToken(id)
	if err != nil {
		lg.Error("can't sign session cookie", "err", err)
		return
	}

	s.SetCookie(w, CookieOpts{Value: token, Host: r.Host})
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, ErrNoSessionCookie):
		return "missing"
	case errors.Is(err, ErrBadSessionToken):
		return "invalid"
	default:
		return "expired"
	}
}
