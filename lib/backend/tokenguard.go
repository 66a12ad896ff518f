package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var tokenFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "expoasia_csrf_token_fetches_total",
	Help: "Anti-forgery token fetches by result",
}, []string{"result"})

var errNoToken = errors.New("backend: token response carried no token")

// TokenGuard holds one session's anti-forgery token. It fetches the token
// on first use and only fetches again after Invalidate. Concurrent callers
// share one fetch.
type TokenGuard struct {
	b  *Backend
	hc *http.Client

	group singleflight.Group

	lock  sync.RWMutex
	token string
}

func newTokenGuard(b *Backend, hc *http.Client) *TokenGuard {
	return &TokenGuard{b: b, hc: hc}
}

// Token returns the cached token, fetching it if there is none.
func (g *TokenGuard) Token(ctx context.Context) (string, error) {
	g.lock.RLock()
	token := g.token
	g.lock.RUnlock()

	if token != "" {
		return token, nil
	}

	v, err, _ := g.group.Do("token", func() (any, error) {
		g.lock.RLock()
		token := g.token
		g.lock.RUnlock()
		if token != "" {
			return token, nil
		}

		token, err := g.fetch(ctx)
		if err != nil {
			tokenFetches.WithLabelValues("error").Inc()
			return "", err
		}
		tokenFetches.WithLabelValues("ok").Inc()

		g.lock.Lock()
		g.token = token
		g.lock.Unlock()

		return token, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Invalidate drops stale if it is still the cached token. A token another
// caller already replaced is left alone.
func (g *TokenGuard) Invalidate(stale string) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.token == stale {
		g.token = ""
	}
}

func (g *TokenGuard) fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.b.timeout)
	defer cancel()

	target := g.b.endpoint(g.b.csrfPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", challenge.NewError(challenge.ErrServer, "fetch token", "error_backend_rejected", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.hc.Do(req)
	if err != nil {
		return "", challenge.NewError(challenge.ErrNetwork, "fetch token", "error_backend_unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", challenge.NewError(challenge.ErrNetwork, "fetch token", "error_backend_unreachable", err)
	}

	if resp.StatusCode >= 400 {
		return "", classify("fetch token", g.b.csrfPath, resp.StatusCode, body)
	}

	var tr struct {
		CSRFToken string `json:"csrfToken"`
	}
	_ = json.Unmarshal(body, &tr)
	if tr.CSRFToken != "" {
		return tr.CSRFToken, nil
	}

	if u, err := url.Parse(target); err == nil && g.hc.Jar != nil {
		for _, c := range g.hc.Jar.Cookies(u) {
			if c.Name == expoasia.CSRFCookie && c.Value != "" {
				return c.Value, nil
			}
		}
	}

	return "", challenge.NewError(challenge.ErrAuth, "fetch token", "error_session_refused", fmt.Errorf("%w: GET %s", errNoToken, g.b.csrfPath))
}
