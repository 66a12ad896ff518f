package backend

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Genosoo/expoasia-web-app/lib/backend/backendtest"
	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

const email = "jose.rizal@example.ph"

func draft() registration.ParticipantDraft {
	return registration.ParticipantDraft{
		FirstName:   "Jose",
		LastName:    "Rizal",
		Email:       email,
		Designation: "Logistics Officer",
		Mobile:      "+639181112222",
		Viber:       "+639181112222",
		WhatsApp:    "+639181112222",
	}
}

func setup(t *testing.T, opts Options) (*backendtest.Server, *Backend, *Client) {
	t.Helper()

	srv := backendtest.New(t)
	opts.URL = srv.APIURL()

	b, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}

	c, err := b.NewClient()
	if err != nil {
		t.Fatal(err)
	}

	return srv, b, c
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "/api/", "ftp://example.ph/", "http://"} {
		if _, err := New(Options{URL: u}); !errors.Is(err, ErrBadURL) {
			t.Errorf("New(%q): %v", u, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	srv, b, c := setup(t, Options{
		Invite: &InviteDetails{CustomMessage: "See you at the expo", Event: "expoasia-2025"},
	})

	ch, err := c.Issue(t.Context(), email)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if ch.Reference == "" || !ch.ExpiresAt.After(ch.IssuedAt) {
		t.Fatalf("bad challenge: %+v", ch)
	}

	if got := ch.ExpiresAt.Sub(ch.IssuedAt); got != srv.OTP.Lifetime {
		t.Errorf("lifetime = %s, want %s", got, srv.OTP.Lifetime)
	}

	ok, err := c.Verify(t.Context(), ch.Reference, "not-it")
	if err != nil || ok {
		t.Fatalf("wrong code: matched=%v err=%v", ok, err)
	}

	ok, err = c.Verify(t.Context(), ch.Reference, srv.OTP.Inbox(email))
	if err != nil || !ok {
		t.Fatalf("right code: matched=%v err=%v", ok, err)
	}

	cred, err := c.IssueCredential(t.Context(), draft(), ch.Reference)
	if err != nil {
		t.Fatalf("IssueCredential: %v", err)
	}

	if cred.ID != "1" || cred.ImageURL != "/media/qr/1.png" {
		t.Errorf("credential = %+v", cred)
	}

	ps := srv.Participants()
	if len(ps) != 1 {
		t.Fatalf("%d participants created", len(ps))
	}

	if ps[0].Fields["phone_no"] != "+639181112222" || ps[0].OTPReference != ch.Reference {
		t.Errorf("participant record = %+v", ps[0])
	}

	if ps[0].InviteDetails["custom_msg"] != "See you at the expo" || ps[0].InviteDetails["event"] != "expoasia-2025" {
		t.Errorf("invite details = %v", ps[0].InviteDetails)
	}

	if n := srv.TokenFetches(); n != 1 {
		t.Errorf("token fetched %d times, want 1", n)
	}

	img, err := b.FetchImage(t.Context(), cred.ImageURL)
	if err != nil {
		t.Fatal(err)
	}

	if img.ContentType != "image/png" || !bytes.Equal(img.Data, backendtest.PNG) {
		t.Errorf("image = %s, %d bytes", img.ContentType, len(img.Data))
	}
}

func TestTokenSingleFlight(t *testing.T) {
	srv, _, c := setup(t, Options{})

	var wg sync.WaitGroup
	tokens := make([]string, 16)
	errs := make([]error, 16)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = c.Guard().Token(t.Context())
		}()
	}
	wg.Wait()

	for i := range tokens {
		if errs[i] != nil {
			t.Fatal(errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Fatal("callers got different tokens")
		}
	}

	if n := srv.TokenFetches(); n != 1 {
		t.Errorf("token fetched %d times, want 1", n)
	}
}

func TestTokenFromCookie(t *testing.T) {
	srv, _, c := setup(t, Options{})
	srv.SetTokenInBody(false)

	if _, err := c.Issue(t.Context(), email); err != nil {
		t.Fatalf("Issue with cookie-only token: %v", err)
	}
}

func TestTokenRejection(t *testing.T) {
	for _, tt := range []struct {
		name    string
		reject  int
		fetches int
		err     error
	}{
		{name: "accepted", reject: 0, fetches: 1},
		{name: "rejected once", reject: 1, fetches: 2},
		{name: "rejected twice", reject: 2, fetches: 2, err: challenge.ErrAuth},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, c := setup(t, Options{})
			srv.RejectCSRF(tt.reject)

			_, err := c.Issue(t.Context(), email)
			if !errors.Is(err, tt.err) {
				t.Fatalf("want %v, got: %v", tt.err, err)
			}

			if n := srv.TokenFetches(); n != tt.fetches {
				t.Errorf("token fetched %d times, want %d", n, tt.fetches)
			}

			if tt.err == nil && len(srv.OTP.Inbox(email)) == 0 {
				t.Error("no passcode was sent")
			}
		})
	}
}

func TestRevokedTokenIsReplaced(t *testing.T) {
	srv, _, c := setup(t, Options{})

	if _, err := c.Issue(t.Context(), email); err != nil {
		t.Fatal(err)
	}

	srv.RevokeTokens()

	if _, err := c.Issue(t.Context(), email); err != nil {
		t.Fatalf("Issue after revocation: %v", err)
	}

	if n := srv.TokenFetches(); n != 2 {
		t.Errorf("token fetched %d times, want 2", n)
	}
}

func TestErrorKinds(t *testing.T) {
	for _, tt := range []struct {
		name   string
		path   string
		status int
		call   func(context.Context, *Client) error
		kind   error
		public string
	}{
		{
			name:   "dropped connection",
			path:   "/api/otp/send",
			status: backendtest.Drop,
			call:   issue,
			kind:   challenge.ErrNetwork,
			public: "error_backend_unreachable",
		},
		{
			name:   "server error",
			path:   "/api/otp/send",
			status: http.StatusInternalServerError,
			call:   issue,
			kind:   challenge.ErrServer,
			public: "error_backend_rejected",
		},
		{
			name:   "gone",
			path:   "/api/otp/verify",
			status: http.StatusGone,
			call: func(ctx context.Context, c *Client) error {
				_, err := c.Verify(ctx, "ref", "123456")
				return err
			},
			kind:   challenge.ErrExpired,
			public: "error_code_expired",
		},
		{
			name:   "token endpoint down",
			path:   "/api/csrf",
			status: http.StatusServiceUnavailable,
			call:   issue,
			kind:   challenge.ErrServer,
			public: "error_backend_rejected",
		},
		{
			name:   "participant dropped",
			path:   "/api/participants",
			status: backendtest.Drop,
			call: func(ctx context.Context, c *Client) error {
				_, err := c.IssueCredential(ctx, draft(), "ref")
				return err
			},
			kind:   challenge.ErrNetwork,
			public: "error_backend_unreachable",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, c := setup(t, Options{})
			srv.FailNext(tt.path, tt.status)

			err := tt.call(t.Context(), c)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("want %v, got: %v", tt.kind, err)
			}

			var cerr *challenge.Error
			if !errors.As(err, &cerr) {
				t.Fatalf("not a *challenge.Error: %T", err)
			}

			if cerr.PublicReason != tt.public {
				t.Errorf("public reason = %q, want %q", cerr.PublicReason, tt.public)
			}
		})
	}
}

func issue(ctx context.Context, c *Client) error {
	_, err := c.Issue(ctx, email)
	return err
}

func TestExpiredReference(t *testing.T) {
	srv, _, c := setup(t, Options{})

	now := time.Now()
	srv.OTP.SetClock(func() time.Time { return now })

	ch, err := c.Issue(t.Context(), email)
	if err != nil {
		t.Fatal(err)
	}

	later := now.Add(srv.OTP.Lifetime)
	srv.OTP.SetClock(func() time.Time { return later })

	if _, err := c.Verify(t.Context(), ch.Reference, srv.OTP.Inbox(email)); !errors.Is(err, challenge.ErrExpired) {
		t.Errorf("want ErrExpired, got: %v", err)
	}
}

func TestDuplicateParticipant(t *testing.T) {
	srv, _, c := setup(t, Options{})

	for i := range 2 {
		ch, err := c.Issue(t.Context(), email)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := c.Verify(t.Context(), ch.Reference, srv.OTP.Inbox(email)); err != nil {
			t.Fatal(err)
		}

		_, err = c.IssueCredential(t.Context(), draft(), ch.Reference)
		switch i {
		case 0:
			if err != nil {
				t.Fatal(err)
			}
		case 1:
			if !errors.Is(err, challenge.ErrServer) {
				t.Errorf("duplicate registration: %v", err)
			}
		}
	}
}

func TestSessionAgainstBackend(t *testing.T) {
	srv, _, c := setup(t, Options{})

	sess, err := registration.New(registration.Config{
		Issuer:      c,
		Verifier:    c,
		Credentials: c,
	})
	if err != nil {
		t.Fatal(err)
	}

	d := draft()
	for _, f := range registration.Fields() {
		if err := sess.SetField(f, d.Get(f)); err != nil {
			t.Fatal(err)
		}
	}

	if err := sess.Submit(t.Context()); err != nil {
		t.Fatal(err)
	}

	srv.FailNext("/api/participants", backendtest.Drop)

	if err := sess.EnterCode(t.Context(), srv.OTP.Inbox(email)); err != nil {
		t.Fatalf("EnterCode: %v", err)
	}

	snap := sess.Snapshot()
	if snap.State != registration.StateComplete || snap.Credential == nil {
		t.Fatalf("state = %s", snap.State)
	}

	if n := len(srv.Participants()); n != 1 {
		t.Errorf("%d participants created", n)
	}
}
