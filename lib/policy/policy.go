// Package policy turns a registration policy file into the settings and
// validators the portal runs with.
package policy

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Genosoo/expoasia-web-app/lib/backend"
	"github.com/Genosoo/expoasia-web-app/lib/policy/config"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Applications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expoasia_policy_field_rule_results",
		Help: "The results of each policy field rule",
	}, []string{"rule", "result"})

	ErrRuleNotBoolean = errors.New("config.FieldRule: expression must return a bool")
)

type ParsedConfig struct {
	Invite              *backend.InviteDetails
	Attempts            int
	OTPLifetime         time.Duration
	ResendCooldown      time.Duration
	SessionIdleTimeout  time.Duration
	CredentialRetention time.Duration
	Store               *config.Store
	Impressum           *config.Impressum
	Validator           *registration.Validator
}

func NewParsedConfig(orig *config.Config) *ParsedConfig {
	result := &ParsedConfig{
		Attempts:            orig.OTP.Attempts,
		OTPLifetime:         orig.OTP.Lifetime,
		ResendCooldown:      orig.OTP.ResendCooldown,
		SessionIdleTimeout:  orig.SessionIdleTimeout,
		CredentialRetention: orig.CredentialRetention,
		Store:               orig.Store,
		Impressum:           orig.Impressum,
		Validator:           &registration.Validator{},
	}

	if orig.Event.ID != "" {
		result.Invite = &backend.InviteDetails{
			CustomMessage: orig.Event.CustomMessage,
			Event:         orig.Event.ID,
		}
	}

	return result
}

// ParseConfig loads a policy and compiles its field rules.
func ParseConfig(fin io.Reader, fname string) (*ParsedConfig, error) {
	c, err := config.Load(fin, fname)
	if err != nil {
		return nil, err
	}

	result := NewParsedConfig(c)

	var validationErrs []error

	for _, fr := range c.FieldRules {
		field, err := registration.ParseField(fr.Field)
		if err != nil {
			validationErrs = append(validationErrs, err)
			continue
		}

		rule, err := NewCELRule(fr.Expression)
		if err != nil {
			validationErrs = append(validationErrs, fmt.Errorf("while processing rule %s expressions: %w", fr.Name, err))
			continue
		}

		result.Validator.Rules = append(result.Validator.Rules, registration.FieldRule{
			Name:      fr.Name,
			Field:     field,
			MessageID: fr.Message,
			Check:     counted(fr.Name, rule.Check),
		})
	}

	if len(validationErrs) > 0 {
		return nil, fmt.Errorf("errors validating policy config %s: %w", fname, errors.Join(validationErrs...))
	}

	return result, nil
}

func counted(name string, check func(registration.ParticipantDraft) (bool, error)) func(registration.ParticipantDraft) (bool, error) {
	return func(d registration.ParticipantDraft) (bool, error) {
		ok, err := check(d)
		switch {
		case err != nil:
			Applications.WithLabelValues(name, "error").Inc()
		case ok:
			Applications.WithLabelValues(name, "pass").Inc()
		default:
			Applications.WithLabelValues(name, "fail").Inc()
		}
		return ok, err
	}
}
