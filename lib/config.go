package lib

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/data"
	"github.com/Genosoo/expoasia-web-app/decaymap"
	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/backend"
	"github.com/Genosoo/expoasia-web-app/lib/localization"
	"github.com/Genosoo/expoasia-web-app/lib/policy"
	"github.com/Genosoo/expoasia-web-app/lib/policy/config"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"github.com/Genosoo/expoasia-web-app/lib/store"
	"github.com/Genosoo/expoasia-web-app/web"
)

var (
	ErrNoBackend = errors.New("lib: Options.Backend must be set")
	ErrNoStore   = errors.New("lib: Options.Store must be set")
)

type Options struct {
	Policy  *policy.ParsedConfig
	Backend *backend.Backend
	Store   store.Interface

	CookieDynamicDomain bool
	CookieDomain        string
	CookieName          string
	CookiePartitioned   bool
	CookieSecure        bool
	BasePrefix          string
	WebmasterEmail      string
	ED25519PrivateKey   ed25519.PrivateKey
	HS512Secret         []byte
	ServeRobotsTXT      bool

	// OperationTimeout bounds one visitor action, every backend call it
	// makes included. Defaults to three backend timeouts.
	OperationTimeout time.Duration

	Now func() time.Time
}

// LoadPoliciesOrDefault reads the registration policy at fname, or the
// embedded default when fname is empty.
func LoadPoliciesOrDefault(fname string) (*policy.ParsedConfig, error) {
	var fin io.ReadCloser
	var err error

	if fname != "" {
		fin, err = os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("can't parse policy file %s: %w", fname, err)
		}
	} else {
		fname = "(data)/registration.yaml"
		fin, err = data.Policies.Open("registration.yaml")
		if err != nil {
			return nil, fmt.Errorf("[unexpected] can't parse builtin policy file %s: %w", fname, err)
		}
	}

	defer func(fin io.ReadCloser) {
		err := fin.Close()
		if err != nil {
			slog.Error("failed to close policy file", "file", fname, "err", err)
		}
	}(fin)

	result, err := policy.ParseConfig(fin, fname)
	if err != nil {
		return nil, fmt.Errorf("can't parse policy file %s: %w", fname, err)
	}

	return result, nil
}

// BuildStore opens the store backend the policy names. Background work
// the backend starts stops when ctx is cancelled.
func BuildStore(ctx context.Context, cfg *config.Store) (store.Interface, error) {
	fac, ok := store.Get(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStoreBackend, cfg.Backend)
	}

	result, err := fac.Build(ctx, cfg.Parameters)
	if err != nil {
		return nil, fmt.Errorf("can't build %s store: %w", cfg.Backend, err)
	}

	return result, nil
}

func New(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}

	if opts.Store == nil {
		return nil, ErrNoStore
	}

	if opts.ED25519PrivateKey == nil && len(opts.HS512Secret) == 0 {
		slog.Debug("opts.PrivateKey not set, generating a new one")
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("lib: can't generate private key: %v", err)
		}
		opts.ED25519PrivateKey = priv
	}

	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 3 * expoasia.DefaultBackendTimeout
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	expoasia.BasePrefix = opts.BasePrefix

	cookieName := expoasia.CookieName
	if opts.CookieName != "" {
		cookieName = opts.CookieName
	}

	result := &Server{
		policy:      opts.Policy,
		backend:     opts.Backend,
		opts:        opts,
		cookieName:  cookieName,
		prefix:      strings.TrimSuffix(opts.BasePrefix, "/") + expoasia.RegisterPath,
		sessions:    decaymap.New[string, *registration.Session](),
		throttle:    &Throttle{Store: &store.JSON[time.Time]{Underlying: opts.Store, Prefix: "resend:"}, Cooldown: opts.Policy.ResendCooldown, Now: opts.Now},
		credentials: &store.JSON[registration.Credential]{Underlying: opts.Store, Prefix: "credential:"},
		now:         opts.Now,
	}

	if opts.ED25519PrivateKey != nil {
		result.ed25519Priv = opts.ED25519PrivateKey
		result.ed25519Pub = opts.ED25519PrivateKey.Public().(ed25519.PublicKey)
	}
	result.hs512Secret = opts.HS512Secret

	mux := http.NewServeMux()

	// Helper to add global prefix
	registerWithPrefix := func(pattern string, handler http.Handler, method string) {
		if method != "" {
			method = method + " " // methods must end with a space to register with them
		}

		// Ensure there's no double slash when concatenating BasePrefix and pattern
		basePrefix := strings.TrimSuffix(expoasia.BasePrefix, "/")
		prefix := method + basePrefix

		// If pattern doesn't start with a slash, add one
		if !strings.HasPrefix(pattern, "/") {
			pattern = "/" + pattern
		}

		mux.Handle(prefix+pattern, handler)
	}

	stripPrefix := strings.TrimSuffix(expoasia.BasePrefix, "/") + expoasia.StaticPath
	registerWithPrefix(expoasia.StaticPath, internal.UnchangingCache(internal.NoBrowsing(http.StripPrefix(stripPrefix, http.FileServerFS(staticRoot())))), "")

	if opts.ServeRobotsTXT {
		registerWithPrefix("/robots.txt", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeFileFS(w, r, web.Static, "static/robots.txt")
		}), "GET")
	}

	if opts.Policy.Impressum != nil {
		registerWithPrefix(expoasia.RegisterPath+"/privacy", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			localizer := localization.GetLocalizer(r)
			privacy := opts.Policy.Impressum.Privacy
			templ.Handler(
				web.Base(privacy.Title, privacy, opts.Policy.Impressum, localizer),
			).ServeHTTP(w, r)
		}), "GET")
	}

	reg := expoasia.RegisterPath
	registerWithPrefix(reg, http.HandlerFunc(result.mount), "GET")
	registerWithPrefix(reg+"/status", result.withSession(result.status), "GET")
	registerWithPrefix(reg+"/submit", result.withSession(result.submit), "POST")
	registerWithPrefix(reg+"/verify", result.withSession(result.verify), "POST")
	registerWithPrefix(reg+"/resend", result.withSession(result.resend), "POST")
	registerWithPrefix(reg+"/retry", result.withSession(result.retry), "POST")
	registerWithPrefix(reg+"/back", result.withSession(result.back), "POST")
	registerWithPrefix(reg+"/cancel", result.withSession(result.cancel), "POST")
	registerWithPrefix(reg+"/credential/{id}", http.HandlerFunc(result.credential), "GET")
	registerWithPrefix("/healthz", http.HandlerFunc(healthz), "GET")
	registerWithPrefix("/{$}", http.RedirectHandler(result.prefix, http.StatusFound), "GET")

	result.mux = mux

	return result, nil
}
