// Package expoasia contains the version number and shared constants of the
// Expo Asia visitor registration portal.
package expoasia

import "time"

// Version is the current version of the portal.
//
// This variable is set at build time using the -X linker flag. If not set,
// it defaults to "devel".
var Version = "devel"

// CookieName is the name of the cookie that carries the signed wizard
// session token.
var CookieName = "expoasia-registration"

// ForcedLanguage is the language used for every page, or empty to follow
// the visitor's Accept-Language header.
var ForcedLanguage = ""

// BasePrefix is a global prefix for all portal endpoints. Can be emptied to
// remove the prefix entirely.
var BasePrefix = ""

const (
	// RegisterPath is where the wizard is mounted, relative to BasePrefix.
	RegisterPath = "/register"

	// StaticPath is the location where all static assets are served.
	StaticPath = "/static/"

	// CredentialFilename is the download name of the check-in QR code.
	CredentialFilename = "QRCode.png"

	// CSRFHeader is the request header the backend reads the anti-forgery
	// token from.
	CSRFHeader = "X-CSRFToken"

	// CSRFCookie is the cookie the backend sets when handing out a token.
	CSRFCookie = "csrftoken"
)

const (
	// DefaultOTPAttempts is how many wrong codes a visitor may enter for one
	// challenge before it is exhausted.
	DefaultOTPAttempts = 3

	// DefaultOTPLifetime is used when the backend does not say how long a
	// passcode is valid for.
	DefaultOTPLifetime = 5 * time.Minute

	// DefaultResendCooldown is the minimum time between two passcode emails
	// to the same address.
	DefaultResendCooldown = 30 * time.Second

	// DefaultSessionIdleTimeout is how long an untouched wizard lives.
	DefaultSessionIdleTimeout = 30 * time.Minute

	// DefaultCredentialRetention is how long a finished credential can be
	// downloaded again.
	DefaultCredentialRetention = 30 * time.Minute

	// DefaultBackendTimeout bounds each call to the event backend.
	DefaultBackendTimeout = 10 * time.Second
)
