package registration

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("registration: draft is not valid")

// ValidationError names the first field that stops a draft from being
// submitted. MessageID is a localization message ID.
type ValidationError struct {
	Field     Field
	MessageID string
	Rule      string
}

func (e *ValidationError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("registration: %s failed rule %q", e.Field, e.Rule)
	}
	return fmt.Sprintf("registration: %s: %s", e.Field, e.MessageID)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// requiredOrder is the order required fields are checked in, so the
// visitor is always pointed at the same field first.
var requiredOrder = []Field{
	FieldLastName,
	FieldFirstName,
	FieldDesignation,
	FieldMobile,
	FieldViber,
	FieldWhatsApp,
	FieldEmail,
}

// Required reports whether f must be filled in before submitting.
func Required(f Field) bool {
	for _, r := range requiredOrder {
		if r == f {
			return true
		}
	}
	return false
}

// Validate runs the built-in checks: required fields in order, then the
// email shape. It returns nil or a *ValidationError and never does I/O.
func Validate(d ParticipantDraft) error {
	for _, f := range requiredOrder {
		if d.Get(f) == "" {
			return &ValidationError{Field: f, MessageID: "validation_required_" + f.String()}
		}
	}

	if !EmailShapeOK(d.Email) {
		return &ValidationError{Field: FieldEmail, MessageID: "validation_email_shape"}
	}

	return nil
}

// EmailShapeOK checks for local-part@domain where the domain has a dot
// with a label on each side. It does not try to be RFC 5322.
func EmailShapeOK(email string) bool {
	if strings.ContainsAny(email, " \t\r\n") || strings.Count(email, "@") != 1 {
		return false
	}

	local, domain, _ := strings.Cut(email, "@")
	if local == "" {
		return false
	}

	dot := strings.Index(domain, ".")
	return dot > 0 && !strings.HasSuffix(domain, ".") && !strings.Contains(domain, "..")
}

// FieldRule is an extra check on top of the built-ins. Check returns false
// when the draft breaks the rule.
type FieldRule struct {
	Name      string
	Field     Field
	MessageID string
	Check     func(ParticipantDraft) (bool, error)
}

// Validator runs Validate and then Rules in order.
type Validator struct {
	Rules []FieldRule
}

func (v *Validator) Validate(d ParticipantDraft) error {
	if err := Validate(d); err != nil {
		return err
	}

	if v == nil {
		return nil
	}

	for _, rule := range v.Rules {
		ok, err := rule.Check(d)
		if err != nil {
			return fmt.Errorf("registration: can't evaluate rule %q: %w", rule.Name, err)
		}

		if !ok {
			return &ValidationError{Field: rule.Field, MessageID: rule.MessageID, Rule: rule.Name}
		}
	}

	return nil
}
