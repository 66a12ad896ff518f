// Package registration holds the visitor self-registration workflow: the
// participant draft, its validation, and the session state machine that
// drives passcode confirmation and credential issuance.
package registration

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownField = errors.New("registration: unknown field")

// Field identifies one input of the registration form.
type Field int

const (
	FieldUnknown Field = iota
	FieldLastName
	FieldFirstName
	FieldMiddleName
	FieldDesignation
	FieldOrganization
	FieldMilitaryBranch
	FieldMobile
	FieldViber
	FieldWhatsApp
	FieldEmail
)

// wireNames are the names the backend and the form use.
var wireNames = map[Field]string{
	FieldLastName:       "last_name",
	FieldFirstName:      "first_name",
	FieldMiddleName:     "middle_name",
	FieldDesignation:    "designation",
	FieldOrganization:   "company_org_other",
	FieldMilitaryBranch: "military_branch",
	FieldMobile:         "phone_no",
	FieldViber:          "viber_no",
	FieldWhatsApp:       "whatsapp_no",
	FieldEmail:          "email",
}

// Fields returns every form field in display order.
func Fields() []Field {
	return []Field{
		FieldFirstName,
		FieldMiddleName,
		FieldLastName,
		FieldEmail,
		FieldDesignation,
		FieldOrganization,
		FieldMilitaryBranch,
		FieldMobile,
		FieldViber,
		FieldWhatsApp,
	}
}

func (f Field) String() string {
	if name, ok := wireNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// ParseField maps a wire name such as "phone_no" to its Field.
func ParseField(name string) (Field, error) {
	for f, wire := range wireNames {
		if wire == name {
			return f, nil
		}
	}

	return FieldUnknown, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// ParticipantDraft is the visitor's form input. It is only changed through
// Set so every value is normalised the same way.
type ParticipantDraft struct {
	FirstName      string `json:"first_name"`
	MiddleName     string `json:"middle_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Designation    string `json:"designation"`
	Organization   string `json:"company_org_other"`
	MilitaryBranch string `json:"military_branch"`
	Mobile         string `json:"phone_no"`
	Viber          string `json:"viber_no"`
	WhatsApp       string `json:"whatsapp_no"`
}

func (d *ParticipantDraft) ptr(f Field) *string {
	switch f {
	case FieldFirstName:
		return &d.FirstName
	case FieldMiddleName:
		return &d.MiddleName
	case FieldLastName:
		return &d.LastName
	case FieldEmail:
		return &d.Email
	case FieldDesignation:
		return &d.Designation
	case FieldOrganization:
		return &d.Organization
	case FieldMilitaryBranch:
		return &d.MilitaryBranch
	case FieldMobile:
		return &d.Mobile
	case FieldViber:
		return &d.Viber
	case FieldWhatsApp:
		return &d.WhatsApp
	default:
		return nil
	}
}

// Set stores value for f with surrounding whitespace removed.
func (d *ParticipantDraft) Set(f Field, value string) error {
	p := d.ptr(f)
	if p == nil {
		return fmt.Errorf("%w: %v", ErrUnknownField, f)
	}

	*p = strings.TrimSpace(value)
	return nil
}

// Get returns the value of f, or "" for an unknown field.
func (d ParticipantDraft) Get(f Field) string {
	if p := d.ptr(f); p != nil {
		return *p
	}
	return ""
}

// Values returns the draft keyed by wire name.
func (d ParticipantDraft) Values() map[string]string {
	result := make(map[string]string, len(wireNames))
	for f, name := range wireNames {
		result[name] = d.Get(f)
	}
	return result
}
