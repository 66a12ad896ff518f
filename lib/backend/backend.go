// Package backend talks to the event backend's REST API: passcode emails,
// passcode checks and participant creation.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/Genosoo/expoasia-web-app"
	"golang.org/x/net/publicsuffix"
)

const (
	otpSendPath      = "otp/send"
	otpVerifyPath    = "otp/verify"
	participantsPath = "participants"

	// maxBody caps JSON responses. Credential images use maxImage.
	maxBody  = 1 << 20
	maxImage = 8 << 20
)

var (
	ErrBadURL     = errors.New("backend: URL must be absolute http or https")
	ErrBadDataURL = errors.New("backend: malformed data URL")
)

// InviteDetails is sent with every participant record so the backend can
// word the confirmation email.
type InviteDetails struct {
	CustomMessage string `json:"custom_msg"`
	Event         string `json:"event"`
}

type Options struct {
	// URL is the backend's API root, such as https://api.example.ph/api/.
	URL string

	CSRFPath   string
	CSRFHeader string

	// Timeout bounds each call, token fetches included.
	Timeout time.Duration

	// Lifetime is assumed for a passcode when the backend doesn't say.
	Lifetime time.Duration

	Invite    *InviteDetails
	Transport http.RoundTripper
	Now       func() time.Time
	Logger    *slog.Logger
}

// Backend holds what every session's Client shares. Cookies and the
// anti-forgery token are per Client.
type Backend struct {
	base       *url.URL
	csrfPath   string
	csrfHeader string
	timeout    time.Duration
	lifetime   time.Duration
	invite     *InviteDetails
	transport  http.RoundTripper
	now        func() time.Time
	lg         *slog.Logger

	// images has no cookie jar; credential images need no session.
	images *http.Client
}

func New(opts Options) (*Backend, error) {
	base, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("backend: can't parse %q: %w", opts.URL, err)
	}

	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadURL, opts.URL)
	}

	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if opts.CSRFPath == "" {
		opts.CSRFPath = "csrf"
	}

	if opts.CSRFHeader == "" {
		opts.CSRFHeader = expoasia.CSRFHeader
	}

	if opts.Timeout <= 0 {
		opts.Timeout = expoasia.DefaultBackendTimeout
	}

	if opts.Lifetime <= 0 {
		opts.Lifetime = expoasia.DefaultOTPLifetime
	}

	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Backend{
		base:       base,
		csrfPath:   strings.TrimPrefix(opts.CSRFPath, "/"),
		csrfHeader: opts.CSRFHeader,
		timeout:    opts.Timeout,
		lifetime:   opts.Lifetime,
		invite:     opts.Invite,
		transport:  opts.Transport,
		now:        opts.Now,
		lg:         opts.Logger.With("subsystem", "backend"),
		images: &http.Client{
			Transport: opts.Transport,
			Timeout:   opts.Timeout,
		},
	}, nil
}

// endpoint resolves an API path against the backend root.
func (b *Backend) endpoint(path string) string {
	return b.base.JoinPath(path).String()
}

// NewClient returns a client for one registration session with its own
// cookie jar and TokenGuard.
func (b *Backend) NewClient() (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("backend: can't make cookie jar: %w", err)
	}

	hc := &http.Client{
		Transport: b.transport,
		Jar:       jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		b:     b,
		hc:    hc,
		guard: newTokenGuard(b, hc),
	}, nil
}
