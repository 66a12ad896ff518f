package config

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"

	"github.com/Genosoo/expoasia-web-app/lib/registration"
)

var (
	ErrMissingValue        = errors.New("config: missing value")
	ErrInvalidContactEmail = errors.New("config.Impressum: contact_email is not an email address")
)

// Impressum is the organizer text shown under every step. Footer and the
// privacy notice body are trusted HTML from the operator.
type Impressum struct {
	Organizer    string        `json:"organizer" yaml:"organizer"`
	Footer       string        `json:"footer" yaml:"footer"`
	ContactEmail string        `json:"contact_email,omitempty" yaml:"contact_email,omitempty"`
	Privacy      PrivacyNotice `json:"privacy" yaml:"privacy"`
}

func (i Impressum) Render(_ context.Context, w io.Writer) error {
	if _, err := fmt.Fprint(w, i.Footer); err != nil {
		return err
	}

	if i.ContactEmail != "" {
		addr := html.EscapeString(i.ContactEmail)
		if _, err := fmt.Fprintf(w, ` <a href="mailto:%s">%s</a>`, addr, addr); err != nil {
			return err
		}
	}

	return nil
}

func (i Impressum) Valid() error {
	var errs []error

	if len(i.Organizer) == 0 {
		errs = append(errs, fmt.Errorf("%w: impressum organizer must be defined", ErrMissingValue))
	}

	if len(i.Footer) == 0 {
		errs = append(errs, fmt.Errorf("%w: impressum footer must be defined", ErrMissingValue))
	}

	if i.ContactEmail != "" && !registration.EmailShapeOK(i.ContactEmail) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidContactEmail, i.ContactEmail))
	}

	if err := i.Privacy.Valid(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

// PrivacyNotice is shown above the form submit button.
type PrivacyNotice struct {
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
}

func (pn PrivacyNotice) Render(_ context.Context, w io.Writer) error {
	_, err := fmt.Fprint(w, pn.Body)
	return err
}

func (pn PrivacyNotice) Valid() error {
	var errs []error

	if len(pn.Title) == 0 {
		errs = append(errs, fmt.Errorf("%w: privacy notice title must be defined", ErrMissingValue))
	}

	if len(pn.Body) == 0 {
		errs = append(errs, fmt.Errorf("%w: privacy notice body must be defined", ErrMissingValue))
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}
