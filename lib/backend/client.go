package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/Genosoo/expoasia-web-app/lib/backend")

var (
	_ challenge.Issuer              = (*Client)(nil)
	_ challenge.Verifier            = (*Client)(nil)
	_ registration.CredentialIssuer = (*Client)(nil)
)

// Client makes one registration session's backend calls.
type Client struct {
	b     *Backend
	hc    *http.Client
	guard *TokenGuard
}

// Guard exposes the client's TokenGuard.
func (c *Client) Guard() *TokenGuard {
	return c.guard
}

type otpSendRequest struct {
	Email string `json:"email"`
}

type otpSendResponse struct {
	Reference        string `json:"reference"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

type otpVerifyRequest struct {
	Reference string `json:"reference"`
	Code      string `json:"code"`
}

type otpVerifyResponse struct {
	Matched bool `json:"matched"`
}

type participantRequest struct {
	registration.ParticipantDraft
	OTPReference  string         `json:"otp_reference"`
	InviteDetails *InviteDetails `json:"invite_details,omitempty"`
}

type participantResponse struct {
	ID                 json.RawMessage `json:"id"`
	CredentialImageURL string          `json:"credentialImageUrl"`
}

// Issue asks the backend to email a passcode to email.
func (c *Client) Issue(ctx context.Context, email string) (*challenge.Challenge, error) {
	var resp otpSendResponse
	if err := c.call(ctx, "send passcode", otpSendPath, otpSendRequest{Email: email}, &resp,
		attribute.String("email.key", internal.EmailKey(email))); err != nil {
		return nil, err
	}

	if resp.Reference == "" {
		return nil, challenge.NewError(challenge.ErrServer, "send passcode", "error_backend_rejected", errors.New("response has no reference"))
	}

	lifetime := c.b.lifetime
	if resp.ExpiresInSeconds > 0 {
		lifetime = time.Duration(resp.ExpiresInSeconds) * time.Second
	}

	now := c.b.now()
	return &challenge.Challenge{
		Reference: resp.Reference,
		IssuedAt:  now,
		ExpiresAt: now.Add(lifetime),
	}, nil
}

// Verify asks the backend whether code is the passcode sent for reference.
func (c *Client) Verify(ctx context.Context, reference, code string) (bool, error) {
	var resp otpVerifyResponse
	if err := c.call(ctx, "check passcode", otpVerifyPath, otpVerifyRequest{Reference: reference, Code: code}, &resp); err != nil {
		return false, err
	}

	return resp.Matched, nil
}

// IssueCredential creates the participant record. Failures are returned as
// is; the session decides what to retry.
func (c *Client) IssueCredential(ctx context.Context, draft registration.ParticipantDraft, reference string) (*registration.Credential, error) {
	req := participantRequest{
		ParticipantDraft: draft,
		OTPReference:     reference,
		InviteDetails:    c.b.invite,
	}

	var resp participantResponse
	if err := c.call(ctx, "create participant", participantsPath, req, &resp); err != nil {
		return nil, err
	}

	if resp.CredentialImageURL == "" {
		return nil, challenge.NewError(challenge.ErrServer, "create participant", "error_backend_rejected", errors.New("response has no credentialImageUrl"))
	}

	return &registration.Credential{
		ID:       strings.Trim(string(resp.ID), `"`),
		ImageURL: resp.CredentialImageURL,
		IssuedAt: c.b.now(),
	}, nil
}

// call POSTs in to path with the session's token and decodes the answer
// into out. A token rejection gets one fresh token and one more try.
func (c *Client) call(ctx context.Context, verb, path string, in, out any, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, "backend "+path, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("backend.call", verb))...))
	defer span.End()

	start := time.Now()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: can't encode %s request: %w", verb, err)
	}

	err = c.attempt(ctx, verb, path, body, out)
	if errors.Is(err, challenge.ErrAuth) {
		span.AddEvent("token rejected")
		c.b.lg.Debug("anti-forgery token rejected, fetching a new one", "call", verb)
		err = c.attempt(ctx, verb, path, body, out)
	}

	result := resultLabel(err)
	challenge.TimeTaken.WithLabelValues(path, result).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("backend.result", result))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)

		var cerr *challenge.Error
		if errors.As(err, &cerr) && errors.Is(err, challenge.ErrServer) {
			c.b.lg.Warn("backend rejected call", "call", verb, "err", cerr.PrivateReason)
		}
	}

	return err
}

func (c *Client) attempt(ctx context.Context, verb, path string, body []byte, out any) error {
	token, err := c.guard.Token(ctx)
	if err != nil {
		return err
	}

	err = c.post(ctx, verb, path, token, body, out)
	if errors.Is(err, challenge.ErrAuth) {
		c.guard.Invalidate(token)
	}

	return err
}

func (c *Client) post(ctx context.Context, verb, path, token string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.b.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return challenge.NewError(challenge.ErrServer, verb, "error_backend_rejected", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.b.csrfHeader, token)
	req.Header.Set("Referer", c.b.base.String())

	resp, err := c.hc.Do(req)
	if err != nil {
		return challenge.NewError(challenge.ErrNetwork, verb, "error_backend_unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return challenge.NewError(challenge.ErrNetwork, verb, "error_backend_unreachable", err)
	}

	c.b.lg.Debug("backend call", "call", verb, "status", resp.StatusCode)

	if resp.StatusCode >= 400 {
		return classify(verb, path, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return challenge.NewError(challenge.ErrServer, verb, "error_backend_rejected", fmt.Errorf("can't decode response: %w", err))
	}

	return nil
}

type errorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// classify turns an error response into a *challenge.Error. The body only
// ever goes into the private reason.
func classify(verb, path string, status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	private := fmt.Errorf("%s answered %d: %s", path, status, truncate(body, 256))

	switch {
	case status == http.StatusForbidden && (eb.Code == "csrf_invalid" || bytes.Contains(body, []byte("CSRF"))):
		return challenge.NewError(challenge.ErrAuth, verb, "error_session_refused", private)
	case status == http.StatusGone || eb.Code == "otp_expired":
		return challenge.NewError(challenge.ErrExpired, verb, "error_code_expired", private)
	default:
		return challenge.NewError(challenge.ErrServer, verb, "error_backend_rejected", private)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, challenge.ErrAuth):
		return "auth"
	case errors.Is(err, challenge.ErrExpired):
		return "expired"
	case errors.Is(err, challenge.ErrNetwork):
		return "network"
	default:
		return "server"
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
