package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"k8s.io/apimachinery/pkg/util/yaml"
)

var (
	ErrEventMustHaveID           = errors.New("config.Event: must set id when custom_message is set")
	ErrAttemptsOutOfRange        = errors.New("config.OTP: attempts must be between 1 and 10")
	ErrInvalidDuration           = errors.New("config: invalid duration")
	ErrDurationNotPositive       = errors.New("config: duration must be positive")
	ErrFieldRuleMustHaveName     = errors.New("config.FieldRule: must set name")
	ErrFieldRuleUnknownField     = errors.New("config.FieldRule: unknown field")
	ErrFieldRuleMustHaveMessage  = errors.New("config.FieldRule: must set message")
	ErrFieldRuleMustHaveExpr     = errors.New("config.FieldRule: must set expression")
	ErrFieldRuleNameNotUnique    = errors.New("config.FieldRule: name is used more than once")
	ErrCredentialRetentionTooLow = errors.New("config.Credential: retention must be at least one minute")
)

const maxAttempts = 10

// Event is sent along with every participant record.
type Event struct {
	ID            string `json:"id,omitempty"`
	CustomMessage string `json:"custom_message,omitempty"`
}

func (e Event) Valid() error {
	if e.CustomMessage != "" && e.ID == "" {
		return ErrEventMustHaveID
	}
	return nil
}

type OTP struct {
	Attempts       int
	Lifetime       time.Duration
	ResendCooldown time.Duration
}

type fileOTP struct {
	Attempts       int    `json:"attempts"`
	Lifetime       string `json:"lifetime"`
	ResendCooldown string `json:"resend_cooldown"`
}

func (o fileOTP) parse() (OTP, error) {
	var errs []error

	if o.Attempts < 1 || o.Attempts > maxAttempts {
		errs = append(errs, fmt.Errorf("%w, got: %d", ErrAttemptsOutOfRange, o.Attempts))
	}

	lifetime, err := parseDuration("otp.lifetime", o.Lifetime, false)
	if err != nil {
		errs = append(errs, err)
	}

	// zero turns the throttle off
	cooldown, err := parseDuration("otp.resend_cooldown", o.ResendCooldown, true)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) != 0 {
		return OTP{}, errors.Join(errs...)
	}

	return OTP{
		Attempts:       o.Attempts,
		Lifetime:       lifetime,
		ResendCooldown: cooldown,
	}, nil
}

func parseDuration(name, value string, zeroOK bool) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidDuration, name, err)
	}

	if d < 0 || (d == 0 && !zeroOK) {
		return 0, fmt.Errorf("%w: %s is %s", ErrDurationNotPositive, name, d)
	}

	return d, nil
}

type fileSession struct {
	IdleTimeout string `json:"idle_timeout"`
}

type fileCredential struct {
	Retention string `json:"retention"`
}

// FieldRule is an extra check on the form. Expression must evaluate to
// true for the draft to be accepted.
type FieldRule struct {
	Name       string            `json:"name"`
	Field      string            `json:"field"`
	Expression *ExpressionOrList `json:"expression"`
	Message    string            `json:"message"`
}

func (fr FieldRule) Valid() error {
	var errs []error

	if fr.Name == "" {
		errs = append(errs, ErrFieldRuleMustHaveName)
	}

	if _, err := registration.ParseField(fr.Field); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrFieldRuleUnknownField, fr.Field))
	}

	if fr.Message == "" {
		errs = append(errs, ErrFieldRuleMustHaveMessage)
	}

	if fr.Expression == nil {
		errs = append(errs, ErrFieldRuleMustHaveExpr)
	} else if err := fr.Expression.Valid(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) != 0 {
		return fmt.Errorf("config: field rule %q is not valid:\n%w", fr.Name, errors.Join(errs...))
	}

	return nil
}

type fileConfig struct {
	Event      Event          `json:"event"`
	OTP        fileOTP        `json:"otp"`
	Session    fileSession    `json:"session"`
	Credential fileCredential `json:"credential"`
	Store      *Store         `json:"store"`
	FieldRules []FieldRule    `json:"field_rules"`
	Impressum  *Impressum     `json:"impressum,omitempty"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		OTP: fileOTP{
			Attempts:       expoasia.DefaultOTPAttempts,
			Lifetime:       expoasia.DefaultOTPLifetime.String(),
			ResendCooldown: expoasia.DefaultResendCooldown.String(),
		},
		Session: fileSession{
			IdleTimeout: expoasia.DefaultSessionIdleTimeout.String(),
		},
		Credential: fileCredential{
			Retention: expoasia.DefaultCredentialRetention.String(),
		},
		Store: &Store{
			Backend: "memory",
		},
	}
}

// Config is a loaded and validated registration policy.
type Config struct {
	Event               Event
	OTP                 OTP
	SessionIdleTimeout  time.Duration
	CredentialRetention time.Duration
	Store               *Store
	FieldRules          []FieldRule
	Impressum           *Impressum
}

// Load decodes a YAML (or JSON) policy from fin. Fields the file leaves
// out keep their defaults. fname is only used in error messages.
func Load(fin io.Reader, fname string) (*Config, error) {
	c := defaultFileConfig()

	if err := yaml.NewYAMLToJSONDecoder(fin).Decode(c); err != nil {
		return nil, fmt.Errorf("can't parse policy config YAML %s: %w", fname, err)
	}

	var errs []error

	if err := c.Event.Valid(); err != nil {
		errs = append(errs, err)
	}

	otp, err := c.OTP.parse()
	if err != nil {
		errs = append(errs, err)
	}

	idle, err := parseDuration("session.idle_timeout", c.Session.IdleTimeout, false)
	if err != nil {
		errs = append(errs, err)
	}

	retention, err := parseDuration("credential.retention", c.Credential.Retention, false)
	if err != nil {
		errs = append(errs, err)
	} else if retention < time.Minute {
		errs = append(errs, fmt.Errorf("%w, got: %s", ErrCredentialRetentionTooLow, retention))
	}

	if c.Store == nil {
		c.Store = &Store{Backend: "memory"}
	}

	if err := c.Store.Valid(); err != nil {
		errs = append(errs, err)
	}

	seen := map[string]bool{}
	for i, fr := range c.FieldRules {
		if err := fr.Valid(); err != nil {
			errs = append(errs, fmt.Errorf("field rule %d: %w", i, err))
		}

		if fr.Name != "" && seen[fr.Name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrFieldRuleNameNotUnique, fr.Name))
		}
		seen[fr.Name] = true
	}

	if c.Impressum != nil {
		if err := c.Impressum.Valid(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return nil, fmt.Errorf("errors validating policy config %s: %w", fname, errors.Join(errs...))
	}

	return &Config{
		Event:               c.Event,
		OTP:                 otp,
		SessionIdleTimeout:  idle,
		CredentialRetention: retention,
		Store:               c.Store,
		FieldRules:          c.FieldRules,
		Impressum:           c.Impressum,
	}, nil
}
